// Package event содержит примитив publish/subscribe, которым пользуются
// все сервисы ядра синхронизации.
//
// Доставка синхронная: Publish вызывает подписчиков по очереди, в порядке
// подписки, в горутине публикующего. Очереди нет, поэтому порядок событий
// для подписчика совпадает с порядком вызовов Publish.
package event

import (
	"slices"
	"sync"
)

// Unsubscribe отменяет подписку. Повторный вызов ничего не делает.
type Unsubscribe func()

type subscriber[T any] struct {
	fn func(T)
	id uint64
}

// Subject список подписчиков на значения типа T
type Subject[T any] struct {
	subscribers []subscriber[T]
	nextID      uint64
	mu          sync.Mutex
}

// NewSubject создает пустой Subject
func NewSubject[T any]() *Subject[T] {
	return &Subject[T]{}
}

// Subscribe добавляет подписчика
func (s *Subject[T]) Subscribe(fn func(T)) Unsubscribe {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	// copy-on-write: Publish работает со снимком и не держит мьютекс
	next := slices.Clone(s.subscribers)
	s.subscribers = append(next, subscriber[T]{id: id, fn: fn})

	var once sync.Once
	return func() {
		once.Do(func() { s.remove(id) })
	}
}

func (s *Subject[T]) remove(id uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.IndexFunc(s.subscribers, func(sub subscriber[T]) bool { return sub.id == id })
	if i < 0 {
		return
	}
	next := slices.Clone(s.subscribers)
	s.subscribers = slices.Delete(next, i, i+1)
}

func (s *Subject[T]) snapshot() []subscriber[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.subscribers
}

// Publish синхронно доставляет значение всем подписчикам
func (s *Subject[T]) Publish(v T) {
	for _, sub := range s.snapshot() {
		sub.fn(v)
	}
}

// Len возвращает количество подписчиков
func (s *Subject[T]) Len() int {
	return len(s.snapshot())
}

// Topics набор Subject, адресуемых ключом. Subject создается лениво при
// первой подписке на ключ.
type Topics[K comparable, T any] struct {
	subjects map[K]*Subject[T]
	mu       sync.Mutex
}

// NewTopics создает пустой набор
func NewTopics[K comparable, T any]() *Topics[K, T] {
	return &Topics[K, T]{subjects: make(map[K]*Subject[T])}
}

// Subscribe подписывает fn на ключ
func (t *Topics[K, T]) Subscribe(key K, fn func(T)) Unsubscribe {
	t.mu.Lock()
	subject, ok := t.subjects[key]
	if !ok {
		subject = NewSubject[T]()
		t.subjects[key] = subject
	}
	t.mu.Unlock()

	return subject.Subscribe(fn)
}

// Publish доставляет значение подписчикам ключа. Возвращает false, если на
// ключ никто никогда не подписывался.
func (t *Topics[K, T]) Publish(key K, v T) bool {
	t.mu.Lock()
	subject, ok := t.subjects[key]
	t.mu.Unlock()

	if !ok {
		return false
	}
	subject.Publish(v)
	return true
}

// Has проверяет, создан ли Subject для ключа
func (t *Topics[K, T]) Has(key K) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.subjects[key]
	return ok
}
