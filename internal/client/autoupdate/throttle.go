package autoupdate

import (
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/iudanet/meetsync/pkg/api"
)

// Throttle копит пакеты autoupdate и отдает их объединенными не чаще
// одного раза за delay. При delay == 0 пакеты передаются сразу.
type Throttle struct {
	out     func(*api.Autoupdate)
	logger  *slog.Logger
	timer   *time.Timer
	pending []*api.Autoupdate
	delay   time.Duration
	mu      sync.Mutex

	// maxSeen наибольший принятый to_change_id
	maxSeen int64
	// disabledUntil пока не 0, пакеты передаются без задержки
	disabledUntil int64
}

// NewThrottle создает throttle, который передает пакеты в out
func NewThrottle(delay time.Duration, out func(*api.Autoupdate), logger *slog.Logger) *Throttle {
	return &Throttle{delay: delay, out: out, logger: logger}
}

// Push принимает новый пакет
func (t *Throttle) Push(au *api.Autoupdate) {
	if t.delay <= 0 {
		t.out(au)
		return
	}

	t.mu.Lock()
	t.maxSeen = max(t.maxSeen, au.ToChangeID)
	if t.disabledUntil > 0 {
		if au.ToChangeID >= t.disabledUntil {
			t.disabledUntil = 0
		}
		t.mu.Unlock()
		t.out(au)
		return
	}
	t.pending = append(t.pending, au)
	if au.AllData {
		// полный набор данных обрабатывается сразу вместе с очередью
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.mu.Unlock()
		t.Flush()
		return
	}
	if t.timer == nil {
		t.timer = time.AfterFunc(t.delay, t.Flush)
	}
	t.mu.Unlock()
}

// Flush немедленно передает накопленные пакеты одним объединенным пакетом
func (t *Throttle) Flush() {
	t.mu.Lock()
	t.timer = nil
	batches := t.pending
	t.pending = nil
	t.mu.Unlock()

	if len(batches) == 0 {
		return
	}
	t.logger.Debug("Processing pending autoupdates", "count", len(batches))
	t.out(Merge(batches))
}

// DisableUntil отключает задержку, пока не придет пакет с to_change_id
// не меньше changeID. Используется после собственной записи клиента,
// чтобы ее результат попал в хранилище без ожидания таймера.
func (t *Throttle) DisableUntil(changeID int64) {
	if t.delay <= 0 {
		return
	}
	t.Flush()

	t.mu.Lock()
	defer t.mu.Unlock()
	if changeID <= t.maxSeen {
		return
	}
	t.disabledUntil = changeID
	t.logger.Debug("Autoupdate throttling disabled", "until", changeID)
}

// Discard отбрасывает накопленные пакеты
func (t *Throttle) Discard() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.pending = nil
}

// Pending возвращает количество накопленных пакетов
func (t *Throttle) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Merge объединяет последовательные пакеты в один. Удаление отменяет
// предыдущее изменение того же объекта и наоборот. Пакет с all_data
// заменяет все накопленное до него.
func Merge(batches []*api.Autoupdate) *api.Autoupdate {
	merged := &api.Autoupdate{
		Changed:      make(map[string][]json.RawMessage),
		Deleted:      make(map[string][]int),
		FromChangeID: batches[0].FromChangeID,
		ToChangeID:   batches[len(batches)-1].ToChangeID,
	}

	for _, au := range batches {
		if au.AllData {
			merged.AllData = true
			merged.Changed = cloneChanged(au.Changed)
			merged.Deleted = cloneDeleted(au.Deleted)
			continue
		}

		for collection, ids := range au.Deleted {
			for _, id := range ids {
				merged.Changed[collection] = slices.DeleteFunc(merged.Changed[collection], func(raw json.RawMessage) bool {
					objID, ok := objectID(raw)
					return ok && objID == id
				})
				if !slices.Contains(merged.Deleted[collection], id) {
					merged.Deleted[collection] = append(merged.Deleted[collection], id)
				}
			}
		}

		for collection, objects := range au.Changed {
			for _, raw := range objects {
				if id, ok := objectID(raw); ok {
					merged.Deleted[collection] = slices.DeleteFunc(merged.Deleted[collection], func(d int) bool { return d == id })
					merged.Changed[collection] = slices.DeleteFunc(merged.Changed[collection], func(prev json.RawMessage) bool {
						prevID, ok := objectID(prev)
						return ok && prevID == id
					})
				}
				merged.Changed[collection] = append(merged.Changed[collection], raw)
			}
		}
	}

	for collection, ids := range merged.Deleted {
		if len(ids) == 0 {
			delete(merged.Deleted, collection)
		}
	}
	for collection, objects := range merged.Changed {
		if len(objects) == 0 {
			delete(merged.Changed, collection)
		}
	}
	return merged
}

func objectID(raw json.RawMessage) (int, bool) {
	var head struct {
		ID *int `json:"id"`
	}
	if err := json.Unmarshal(raw, &head); err != nil || head.ID == nil {
		return 0, false
	}
	return *head.ID, true
}

func cloneChanged(src map[string][]json.RawMessage) map[string][]json.RawMessage {
	dst := make(map[string][]json.RawMessage, len(src))
	for collection, objects := range src {
		dst[collection] = slices.Clone(objects)
	}
	return dst
}

func cloneDeleted(src map[string][]int) map[string][]int {
	dst := make(map[string][]int, len(src))
	for collection, ids := range src {
		dst[collection] = slices.Clone(ids)
	}
	return dst
}
