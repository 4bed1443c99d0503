package services

import (
	"sync"
	"time"
)

// Timer, durdurulabilir tek seferlik zamanlayıcı. *time.Timer bunu karşılar.
type Timer interface {
	Stop() bool
}

// TimerFactory, d sonra f'i çalıştıran bir Timer kurar.
// Üretimde time.AfterFunc, testlerde elle tetiklenen sahte saat kullanılır.
type TimerFactory func(d time.Duration, f func()) Timer

// RealTimers, time.AfterFunc tabanlı TimerFactory.
func RealTimers(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }

// TypingWriter, typing bayrağını kalıcı hale getiren taraf.
// Çağrı senkron olmamalıdır (iş kuyruğa atılır).
//
// epoch her geçişte artar. Kuyruk yazımları sırasız çalıştırabilir; kalıcı
// taraf saklı epoch'tan büyük olmayan yazımı atlamalıdır.
type TypingWriter func(convID, userID string, typing bool, epoch int64)

// Presence, (konuşma, katılımcı) başına Idle → Typing → Idle state machine'i.
//
//   - Keystroke: Idle iken Typing'e geçer ve true yazar; zaten Typing iken
//     yazma YAPMAZ, sadece sessizlik zamanlayıcısını yeniden başlatır.
//   - Sessizlik süresi dolunca (varsayılan 2s) Idle'a döner ve false yazar.
//   - Stop: kullanıcı input'u temizledi; hemen Idle + false.
//   - Sent: mesaj gönderildi; hemen Idle + false. Send transaction'ı bayrağı
//     zaten temizler, ama kuyrukta bekleyen eski bir true yazımı onu geri
//     getirebilir; daha büyük epoch'lu false bunu kapatır.
//
// Yazımlar sadece geçişlerde olur; böylece her tuş vuruşu bir DB yazımı üretmez.
type Presence struct {
	mu     sync.Mutex
	states map[typingKey]*typingState
	epoch  int64
	quiet  time.Duration
	timers TimerFactory
	write  TypingWriter
}

type typingKey struct {
	convID string
	userID string
}

type typingState struct {
	timer Timer
	gen   uint64 // eski zamanlayıcıların geç tetiklenmesini ayırt eder
}

// NewPresence, constructor. timers nil ise RealTimers kullanılır.
func NewPresence(quiet time.Duration, timers TimerFactory, write TypingWriter) *Presence {
	if timers == nil {
		timers = RealTimers
	}
	return &Presence{
		states: make(map[typingKey]*typingState),
		// Yeniden başlatmadan sonra da DB'deki epoch'ların üzerinden devam edilir.
		epoch:  time.Now().UnixNano(),
		quiet:  quiet,
		timers: timers,
		write:  write,
	}
}

// Keystroke, kullanıcının yazmaya devam ettiğini bildirir.
func (p *Presence) Keystroke(convID, userID string) {
	key := typingKey{convID, userID}

	p.mu.Lock()
	st, typing := p.states[key]
	if !typing {
		st = &typingState{}
		p.states[key] = st
	} else {
		st.timer.Stop()
	}
	st.gen++
	gen := st.gen
	st.timer = p.timers(p.quiet, func() { p.expire(key, gen) })
	var epoch int64
	if !typing {
		epoch = p.nextEpoch()
	}
	p.mu.Unlock()

	if !typing {
		p.write(convID, userID, true, epoch)
	}
}

// Stop, kullanıcı yazmayı bıraktı (input temizlendi, sayfadan ayrıldı).
func (p *Presence) Stop(convID, userID string) {
	if epoch, ok := p.idle(typingKey{convID, userID}); ok {
		p.write(convID, userID, false, epoch)
	}
}

// Sent, mesaj gönderildi: Idle'a döner. Typing durumundaysa false yazar.
func (p *Presence) Sent(convID, userID string) {
	if epoch, ok := p.idle(typingKey{convID, userID}); ok {
		p.write(convID, userID, false, epoch)
	}
}

// IsTyping, bellekteki state (test ve debug için).
func (p *Presence) IsTyping(convID, userID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.states[typingKey{convID, userID}]
	return ok
}

// Close, tüm zamanlayıcıları durdurur. Bekleyen false yazımları yapılmaz.
func (p *Presence) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, st := range p.states {
		st.timer.Stop()
		delete(p.states, key)
	}
}

func (p *Presence) expire(key typingKey, gen uint64) {
	p.mu.Lock()
	st, ok := p.states[key]
	if !ok || st.gen != gen {
		p.mu.Unlock()
		return
	}
	delete(p.states, key)
	epoch := p.nextEpoch()
	p.mu.Unlock()

	p.write(key.convID, key.userID, false, epoch)
}

// idle, state'i siler. Typing durumundaysa false yazımı için epoch ve true döner.
func (p *Presence) idle(key typingKey) (int64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	st, ok := p.states[key]
	if !ok {
		return 0, false
	}
	st.timer.Stop()
	delete(p.states, key)
	return p.nextEpoch(), true
}

// nextEpoch, p.mu altında çağrılır.
func (p *Presence) nextEpoch() int64 {
	p.epoch++
	return p.epoch
}
