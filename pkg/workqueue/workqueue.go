// Package workqueue, primary request/response yolundan ayrılmış arka plan işleri için
// sınırsız (unbounded) FIFO kuyruk ve worker havuzu sağlar.
//
// Notification fan-out, typing state yazımları ve push delivery gibi
// "fire-and-forget" yan etkiler buraya Submit edilir. Caller hiçbir zaman
// sonucu beklemez; hata ve panic'ler kuyruğun kendi log sink'ine yazılır.
//
// Kuyruk sınırsızdır: Submit asla bloklamaz. Worker'lar sinyal channel'ı
// (buffer 1) ile uyandırılır, böylece context iptali beklerken goroutine asılı kalmaz.
package workqueue

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// Task, kuyruğa gönderilen tek bir iş.
// Name log satırlarında görünür ("notify:vote", "typing:set" gibi).
type Task struct {
	Name string
	Run  func(ctx context.Context) error
}

// ErrorSink, başarısız task'ların raporlandığı yer. Varsayılan: log.Printf.
type ErrorSink func(task string, err error)

// Queue, thread-safe FIFO kuyruk + worker havuzu.
type Queue struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{}

	workers int
	sink    ErrorSink
	group   *errgroup.Group
	cancel  context.CancelFunc
	started atomic.Bool

	inflight sync.WaitGroup
	failures atomic.Int64
}

// New, workers adet worker ile çalışacak bir kuyruk oluşturur.
// Worker'lar Start çağrılana kadar çalışmaz; Submit edilen task'lar birikir.
func New(workers int, sink ErrorSink) *Queue {
	if workers < 1 {
		workers = 1
	}
	if sink == nil {
		sink = func(task string, err error) {
			log.Printf("[workqueue] task %s failed: %v", task, err)
		}
	}

	return &Queue{
		tasks:   make([]Task, 0, 64),
		signal:  make(chan struct{}, 1),
		workers: workers,
		sink:    sink,
	}
}

// Start, worker goroutine'lerini başlatır. İkinci çağrı etkisizdir.
func (q *Queue) Start(ctx context.Context) {
	if !q.started.CompareAndSwap(false, true) {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	q.cancel = cancel

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < q.workers; i++ {
		g.Go(func() error {
			q.work(gctx)
			return nil
		})
	}
	q.group = g
}

// Submit, bir task'ı kuyruğun sonuna ekler. Kuyruk kapalıysa false döner.
// Asla bloklamaz.
func (q *Queue) Submit(name string, run func(ctx context.Context) error) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.inflight.Add(1)
	q.tasks = append(q.tasks, Task{Name: name, Run: run})

	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Len, bekleyen task sayısını döner.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Failures, başlangıçtan beri başarısız olan task sayısı.
func (q *Queue) Failures() int64 {
	return q.failures.Load()
}

// Drain, o ana kadar Submit edilmiş tüm task'lar bitene kadar bekler.
// Test'lerde ve shutdown'da kullanılır. Start çağrılmadıysa sonsuza kadar bekler.
func (q *Queue) Drain() {
	q.inflight.Wait()
}

// Close, yeni task kabulünü durdurur, kalan task'ları bitirir ve worker'ları kapatır.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	if !q.started.Load() {
		return
	}

	q.inflight.Wait()
	q.cancel()
	_ = q.group.Wait()
}

func (q *Queue) work(ctx context.Context) {
	for {
		if task, ok := q.tryDequeue(); ok {
			q.run(ctx, task)
			continue
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return
		}
	}
}

func (q *Queue) tryDequeue() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return Task{}, false
	}

	t := q.tasks[0]
	q.tasks[0] = Task{}
	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
		// Diğer worker'lar da uyansın
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}

	return t, true
}

// run, task'ı çalıştırır. Panic yakalanır ve hata olarak raporlanır;
// bir yan etkinin çökmesi worker'ı öldürmemeli.
func (q *Queue) run(ctx context.Context, t Task) {
	defer q.inflight.Done()

	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("panic: %v", p)
			}
		}()
		return t.Run(ctx)
	}()

	if err != nil {
		q.failures.Add(1)
		q.sink(t.Name, err)
	}
}
