package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidElementID возвращается при разборе некорректного "collection:id"
var ErrInvalidElementID = errors.New("invalid element id")

// Element представляет синхронизируемый объект домена.
// Data хранит полный JSON объекта вместе с полем "id".
// После попадания в хранилище элемент не изменяется.
type Element struct {
	Collection string          `json:"collection"` // пространство имен, например "users/user"
	Data       json.RawMessage `json:"data"`       // полные данные объекта
	ID         int             `json:"id"`         // ID, уникальный внутри коллекции
}

// NewElement создает элемент из JSON объекта, ID берется из поля "id"
func NewElement(collection string, data json.RawMessage) (Element, error) {
	if collection == "" {
		return Element{}, fmt.Errorf("collection cannot be empty")
	}
	var head struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return Element{}, fmt.Errorf("failed to decode %s element: %w", collection, err)
	}
	if head.ID == nil {
		return Element{}, fmt.Errorf("%s element has no id", collection)
	}
	return Element{
		Collection: collection,
		ID:         *head.ID,
		Data:       bytes.Clone(data),
	}, nil
}

// MustElement создает элемент из значения, паникует при ошибке. Используется в тестах и сидах.
func MustElement(collection string, v any) Element {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	e, err := NewElement(collection, data)
	if err != nil {
		panic(err)
	}
	return e
}

// Key возвращает идентификатор вида "collection:id"
func (e Element) Key() ElementID {
	return NewElementID(e.Collection, e.ID)
}

// Decode декодирует данные элемента в v
func (e Element) Decode(v any) error {
	if err := json.Unmarshal(e.Data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", e.Key(), err)
	}
	return nil
}

// Fields декодирует данные элемента в map
func (e Element) Fields() (map[string]any, error) {
	fields := make(map[string]any)
	if err := e.Decode(&fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// Clone возвращает копию элемента с независимым буфером данных
func (e Element) Clone() Element {
	e.Data = bytes.Clone(e.Data)
	return e
}

// ElementID строка вида "collection:id"
type ElementID string

// NewElementID собирает ElementID
func NewElementID(collection string, id int) ElementID {
	return ElementID(collection + ":" + strconv.Itoa(id))
}

// ParseElementID разбирает "collection:id"
func ParseElementID(s string) (collection string, id int, err error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidElementID, s)
	}
	id, err = strconv.Atoi(s[i+1:])
	if err != nil {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidElementID, s)
	}
	return s[:i], id, nil
}

// History точка на временной шкале истории
type History struct {
	Information string `json:"information"` // описание изменения
	Timestamp   int64  `json:"timestamp"`   // unix время, по состоянию на которое строится снимок
}

// HistoryRecord запись журнала истории сервера.
// FullData == nil означает, что элемент был удален.
type HistoryRecord struct {
	UserID      *int            `json:"user_id"`             // кто внес изменение
	ElementID   string          `json:"element_id"`          // "collection:id"
	FullData    json.RawMessage `json:"full_data,omitempty"` // полные данные элемента
	Information []string        `json:"information"`         // описание изменения
	Timestamp   int64           `json:"timestamp"`           // unix время изменения
}

// IsDeletion проверяет, что запись описывает удаление
func (r *HistoryRecord) IsDeletion() bool {
	return len(r.FullData) == 0 || bytes.Equal(bytes.TrimSpace(r.FullData), []byte("null"))
}
