package api

import (
	"encoding/json"
	"maps"
	"slices"
)

// Autoupdate пакет изменений, который сервер рассылает по websocket
type Autoupdate struct {
	Changed      map[string][]json.RawMessage `json:"changed"`        // измененные объекты по коллекциям
	Deleted      map[string][]int             `json:"deleted"`        // удаленные ID по коллекциям
	FromChangeID int64                        `json:"from_change_id"` // первый change id, вошедший в пакет
	ToChangeID   int64                        `json:"to_change_id"`   // последний change id пакета
	AllData      bool                         `json:"all_data"`       // пакет содержит полный набор данных
}

// IsEmpty проверяет, что пакет не содержит изменений
func (a *Autoupdate) IsEmpty() bool {
	for _, objs := range a.Changed {
		if len(objs) > 0 {
			return false
		}
	}
	for _, ids := range a.Deleted {
		if len(ids) > 0 {
			return false
		}
	}
	return true
}

// Collections возвращает отсортированный список затронутых коллекций
func (a *Autoupdate) Collections() []string {
	set := make(map[string]struct{}, len(a.Changed)+len(a.Deleted))
	for c := range a.Changed {
		set[c] = struct{}{}
	}
	for c := range a.Deleted {
		set[c] = struct{}{}
	}
	return slices.Sorted(maps.Keys(set))
}

// GetElementsRequest запрашивает изменения начиная с ChangeID (0 - все данные)
type GetElementsRequest struct {
	ChangeID int64 `json:"change_id"`
}

// ElementWrite один измененный объект в запросе на запись
type ElementWrite struct {
	Collection string          `json:"collection"` // коллекция объекта
	Data       json.RawMessage `json:"data"`       // полные данные, включая "id"
}

// WriteRequest запрос на запись элементов в dev-сервер
type WriteRequest struct {
	Changed     []ElementWrite `json:"changed"`     // новые и измененные объекты
	Deleted     []string       `json:"deleted"`     // удаляемые элементы "collection:id"
	Information []string       `json:"information"` // описание для журнала истории
}

// WriteResponse ответ на запись
type WriteResponse struct {
	ChangeID int64 `json:"change_id"` // change id, присвоенный записи
}
