// Package realtime, koleksiyon/doküman aboneliklerini canlı değişikliklere bağlar.
//
// Bir abonelik önce tam bir snapshot alır, ardından eklenen/değişen/silinen
// dokümanları bridge'in atadığı sırayla (Seq) alır. Polling yerine
// servisler commit sonrası Publish çağırır; bridge ilgili abonelere dağıtır.
//
// Garantiler:
//   - Snapshot yüklenirken yayınlanan değişiklikler kaybolmaz: abonelik loader
//     çağrılmadan ÖNCE kaydedilir, bu arada gelenler tamponlanır ve snapshot'tan
//     sonra teslim edilir.
//   - Her abonelik kendi dispatcher goroutine'inde, sırayla teslim alır.
//     Yavaş bir abone diğerlerini bekletmez.
//   - unsubscribe döndükten sonra callback ASLA çalışmaz. unsubscribe, o anda
//     çalışmakta olan bir callback varsa onun bitmesini bekler.
//   - Publish çağrıları commit sırasıyla gelmeyebilir. Versiyonlu bir doküman
//     için abonenin son gördüğünden eski (veya aynı) versiyon teslim edilmez.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrUnknownCollection, Register edilmemiş bir koleksiyona abone olunduğunda döner.
var ErrUnknownCollection = errors.New("unknown collection")

// ErrClosed, kapatılmış bridge'e abone olunduğunda döner.
var ErrClosed = errors.New("bridge closed")

// ChangeType, tek bir doküman değişikliğinin türü.
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// Change, bir dokümanın yeni hali (Removed için Data nil olabilir).
//
// Version 0 ise doküman versiyonsuzdur ve her zaman teslim edilir. Publish ve
// snapshot, Version boşsa Data'nın Versioned olup olmadığına bakarak doldurur.
type Change struct {
	Type    ChangeType `json:"type"`
	ID      string     `json:"id"`
	Data    any        `json:"data,omitempty"`
	Version int64      `json:"version,omitempty"`
}

// Versioned, yazım başına artan versiyon taşıyan dokümanlar (target, conversation).
type Versioned interface {
	DocVersion() int64
}

// stamp, Version'ı Data'dan doldurulmuş bir kopya döner.
func stamp(changes []Change) []Change {
	out := make([]Change, len(changes))
	for i, c := range changes {
		if v, ok := c.Data.(Versioned); ok && c.Version == 0 {
			c.Version = v.DocVersion()
		}
		out[i] = c
	}
	return out
}

// Query, abone olunabilir bir koleksiyon: "target/<id>", "messages/<convID>" gibi.
type Query struct {
	Collection string `json:"collection"`
	Key        string `json:"key"`
}

func (q Query) String() string { return q.Collection + "/" + q.Key }

// ParseQuery, "collection/key" biçimindeki path'i Query'e çevirir.
func ParseQuery(path string) (Query, error) {
	collection, key, ok := strings.Cut(path, "/")
	if !ok || collection == "" || key == "" {
		return Query{}, fmt.Errorf("invalid subscription path %q", path)
	}
	return Query{Collection: collection, Key: key}, nil
}

// Update, bir aboneye teslim edilen olay.
// Snapshot=true ise Changes koleksiyonun tam içeriğidir (hepsi Added).
type Update struct {
	Query    Query    `json:"query"`
	Seq      uint64   `json:"seq"`
	Snapshot bool     `json:"snapshot"`
	Changes  []Change `json:"changes"`

	sub *subscription
}

// Stop, aboneliği sonlandırır ve çalışan callback'i beklemez.
// unsubscribe fonksiyonu callback içinden çağrılamaz (kendi callback'inin
// bitmesini bekleyeceği için kilitlenir); bunun yerine Stop kullanılır.
// Stop döndükten sonra bu abonelik için yeni callback başlamaz. Update başka
// bir goroutine'e taşınıp oradan durdurulursa, o anda çalışan callback
// bitene kadar sürer; beklemek gerekiyorsa unsubscribe kullanılır.
func (u Update) Stop() {
	if u.sub != nil {
		u.sub.bridge.remove(u.sub)
		u.sub.closed.Store(true)
	}
}

// Loader, bir koleksiyonun o anki tam içeriğini döner.
type Loader func(ctx context.Context, key string) ([]Change, error)

// Bridge, koleksiyon loader'larını ve aktif abonelikleri tutar.
type Bridge struct {
	mu      sync.Mutex
	loaders map[string]Loader
	subs    map[string]map[*subscription]struct{}
	seq     uint64
	closed  bool
}

// NewBridge, boş bir Bridge oluşturur. Koleksiyonlar Register ile eklenir.
func NewBridge() *Bridge {
	return &Bridge{
		loaders: make(map[string]Loader),
		subs:    make(map[string]map[*subscription]struct{}),
	}
}

// Register, bir koleksiyon için snapshot loader'ı kaydeder.
func (b *Bridge) Register(collection string, loader Loader) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.loaders[collection] = loader
}

// Subscribe, q'ya abone olur. İlk callback snapshot'tır.
//
// ctx sadece snapshot yüklemesi içindir; aboneliğin ömrü dönen unsubscribe
// çağrılana (veya Update.Stop'a) kadar sürer.
func (b *Bridge) Subscribe(ctx context.Context, q Query, onChange func(Update)) (func(), error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrClosed
	}
	loader, ok := b.loaders[q.Collection]
	if !ok {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrUnknownCollection, q.Collection)
	}

	sub := newSubscription(b, q, onChange)
	key := q.String()
	if b.subs[key] == nil {
		b.subs[key] = make(map[*subscription]struct{})
	}
	b.subs[key][sub] = struct{}{}
	// Snapshot'ın Seq'i kayıt anındaki sayaçtır; bundan sonraki her Publish daha büyük Seq alır.
	snapshotSeq := b.seq
	b.mu.Unlock()

	docs, err := loader(ctx, q.Key)
	if err != nil {
		b.remove(sub)
		return nil, fmt.Errorf("failed to load snapshot for %s: %w", key, err)
	}
	docs = stamp(docs)

	sub.activate(Update{Query: q, Seq: snapshotSeq, Snapshot: true, Changes: docs})
	go sub.dispatch()

	return sub.unsubscribe, nil
}

// Publish, q'nun abonelerine değişiklikleri iletir. Commit'ten SONRA çağrılır.
// Abone yoksa hiçbir şey yapmaz.
func (b *Bridge) Publish(q Query, changes ...Change) {
	if len(changes) == 0 {
		return
	}

	// Seq ataması ve kuyruğa ekleme aynı kilit altında: her abone Seq sırasıyla alır.
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[q.String()]
	if len(subs) == 0 {
		return
	}

	b.seq++
	u := Update{Query: q, Seq: b.seq, Changes: stamp(changes)}
	for sub := range subs {
		sub.enqueue(u)
	}
}

// SubscriberCount, q için aktif abonelik sayısı.
func (b *Bridge) SubscriberCount(q Query) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs[q.String()])
}

// Close, tüm abonelikleri sonlandırır. Çalışan callback'lerin bitmesini bekler.
func (b *Bridge) Close() {
	b.mu.Lock()
	b.closed = true
	var all []*subscription
	for _, set := range b.subs {
		for sub := range set {
			all = append(all, sub)
		}
	}
	b.mu.Unlock()

	for _, sub := range all {
		sub.unsubscribe()
	}
	log.Printf("[realtime] bridge closed (%d subscriptions torn down)", len(all))
}

func (b *Bridge) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := sub.query.String()
	if set, ok := b.subs[key]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(b.subs, key)
		}
	}
}

// ─── Subscription ───

// subscription, tek bir abonenin sıralı teslim kuyruğu.
//
// queue/pending qmu ile korunur. deliverMu callback çalıştığı sürece tutulur;
// unsubscribe onu alarak çalışan callback'in bitmesini bekler ve closed'ı
// set eder. closed atomiktir; Update.Stop kilit almadan da set edebilir.
// versions sadece dispatcher goroutine'inden erişilir.
type subscription struct {
	bridge   *Bridge
	query    Query
	onChange func(Update)

	qmu     sync.Mutex
	active  bool     // snapshot kuyruğa girdi mi
	pending []Update // snapshot öncesi tamponlanan değişiklikler
	queue   []Update
	signal  chan struct{}
	done    chan struct{}

	deliverMu sync.Mutex
	closed    atomic.Bool
	versions  map[string]int64 // doküman ID → teslim edilen son versiyon

	stopOnce sync.Once
}

func newSubscription(b *Bridge, q Query, onChange func(Update)) *subscription {
	return &subscription{
		bridge:   b,
		query:    q,
		onChange: onChange,
		signal:   make(chan struct{}, 1),
		done:     make(chan struct{}),
		versions: make(map[string]int64),
	}
}

func (s *subscription) enqueue(u Update) {
	u.sub = s

	s.qmu.Lock()
	if s.active {
		s.queue = append(s.queue, u)
	} else {
		s.pending = append(s.pending, u)
	}
	s.qmu.Unlock()

	s.notify()
}

// activate, snapshot'ı kuyruğun başına, tamponlananları arkasına koyar.
func (s *subscription) activate(snapshot Update) {
	snapshot.sub = s

	s.qmu.Lock()
	s.queue = append([]Update{snapshot}, s.pending...)
	s.pending = nil
	s.active = true
	s.qmu.Unlock()

	s.notify()
}

func (s *subscription) notify() {
	select {
	case s.signal <- struct{}{}:
	default:
	}
}

func (s *subscription) dispatch() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.qmu.Lock()
			if len(s.queue) == 0 {
				s.qmu.Unlock()
				break
			}
			u := s.queue[0]
			s.queue = s.queue[1:]
			s.qmu.Unlock()

			if !s.deliver(u) {
				return
			}
		}
	}
}

// deliver, callback'i deliverMu altında çalıştırır. Abonelik kapandıysa false.
func (s *subscription) deliver(u Update) bool {
	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	if s.closed.Load() {
		return false
	}
	if u = s.fresh(u); len(u.Changes) == 0 && !u.Snapshot {
		return true
	}

	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("[realtime] subscriber callback panicked on %s: %v", s.query, r)
			}
		}()
		s.onChange(u)
	}()

	return !s.closed.Load()
}

// fresh, abonenin zaten daha yenisini gördüğü versiyonlu değişiklikleri ayıklar.
// Snapshot versiyon tablosunu baştan kurar; Removed dokümanı tablodan çıkarır.
func (s *subscription) fresh(u Update) Update {
	if u.Snapshot {
		clear(s.versions)
	}

	kept := u.Changes[:0:0]
	for _, c := range u.Changes {
		if c.Type == Removed {
			delete(s.versions, c.ID)
			kept = append(kept, c)
			continue
		}
		if c.Version == 0 {
			kept = append(kept, c)
			continue
		}
		if last, ok := s.versions[c.ID]; ok && c.Version <= last {
			continue
		}
		s.versions[c.ID] = c.Version
		kept = append(kept, c)
	}
	u.Changes = kept
	return u
}

// unsubscribe, idempotent. Döndükten sonra callback çalışmaz.
func (s *subscription) unsubscribe() {
	s.bridge.remove(s)

	s.deliverMu.Lock()
	s.closed.Store(true)
	s.deliverMu.Unlock()

	s.stopOnce.Do(func() { close(s.done) })
}
