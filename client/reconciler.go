package client

import (
	"context"
	"maps"
	"sync"

	"github.com/akinalp/pano/display"
	"github.com/akinalp/pano/models"
)

// Applier, reconciler'ın yazma işlemlerini gönderdiği taraf. API bunu karşılar;
// testlerde sahte implementasyon kullanılır.
type Applier interface {
	ApplyVote(ctx context.Context, targetID string, desired models.VoteValue) (*models.VoteResult, error)
	ApplyReaction(ctx context.Context, targetID string, desired *models.ReactionType) (*models.ReactionResult, error)
}

// TargetState, bir target'ın client'ta gösterilen aggregate'i ve kullanıcının kendi durumu.
type TargetState struct {
	VoteCount      int                         `json:"vote_count"`
	MyVote         models.VoteValue            `json:"my_vote"`
	ReactionCounts map[models.ReactionType]int `json:"reaction_counts"`
	MyReaction     *models.ReactionType        `json:"my_reaction"`
	// Version, aggregate'lerin okunduğu target versiyonu. 0 = bilinmiyor.
	Version int64 `json:"version"`
}

// StateOf, sunucudan gelen TargetView'dan başlangıç state'i çıkarır.
func StateOf(v *display.TargetView) TargetState {
	s := TargetState{
		Version:        v.Target.Version,
		VoteCount:      v.Target.VoteCount,
		MyVote:         v.Votes.Mine,
		ReactionCounts: maps.Clone(v.Target.ReactionCounts),
	}
	for _, p := range v.Reactions {
		if p.Mine {
			t := p.Type
			s.MyReaction = &t
		}
	}
	return s
}

func (s TargetState) clone() TargetState {
	s.ReactionCounts = maps.Clone(s.ReactionCounts)
	if s.ReactionCounts == nil {
		s.ReactionCounts = make(map[models.ReactionType]int)
	}
	if s.MyReaction != nil {
		r := *s.MyReaction
		s.MyReaction = &r
	}
	return s
}

// withVote, istenen oyu state'e uygular. Delta sunucudaki hesapla aynıdır:
// desired - current.
func (s TargetState) withVote(desired models.VoteValue) TargetState {
	s.VoteCount += int(desired - s.MyVote)
	s.MyVote = desired
	return s
}

// withReaction, eski tipi bir azaltır, yeni tipi bir artırır.
func (s TargetState) withReaction(desired *models.ReactionType) TargetState {
	if s.MyReaction != nil {
		s.ReactionCounts[*s.MyReaction]--
		if s.ReactionCounts[*s.MyReaction] <= 0 {
			delete(s.ReactionCounts, *s.MyReaction)
		}
	}
	if desired != nil {
		s.ReactionCounts[*desired]++
		r := *desired
		s.MyReaction = &r
	} else {
		s.MyReaction = nil
	}
	return s
}

// pendingOp, sunucu yanıtı beklenen tek bir optimistic işlem.
type pendingOp struct {
	vote     *models.VoteValue
	reaction *models.ReactionType
	isVote   bool
}

func (op *pendingOp) apply(s TargetState) TargetState {
	if op.isVote {
		return s.withVote(*op.vote)
	}
	return s.withReaction(op.reaction)
}

// newer, v'nin cur'dan sonra yazıldığını söyler. Versiyonsuz (0) değer her
// zaman kabul edilir.
func newer(v, cur int64) bool {
	return v == 0 || v > cur
}

// targetEntry: confirmed, sunucunun son bildirdiği değer; pending, yanıtı
// beklenen işlemler (gönderim sırasıyla). Gösterilen state her zaman
// confirmed üzerine pending'lerin sırayla uygulanmasıdır.
//
// Oy ve reaksiyon sayaçlarının versiyonu ayrı tutulur: bekleyen bir oy işlemi
// varken gelen doküman oy sayacına katılmaz (sayaç işlemi zaten içerebilir,
// üstüne pending delta eklenince çift sayılır). O doküman deferred'da bekler
// ve işlem sonuçlanınca, hâlâ daha yeniyse katılır.
type targetEntry struct {
	confirmed TargetState
	pending   []*pendingOp

	voteVersion     int64
	reactionVersion int64
	deferred        *models.Target
}

func (e *targetEntry) hasPending(vote bool) bool {
	for _, op := range e.pending {
		if op.isVote == vote {
			return true
		}
	}
	return false
}

// fold, t'nin sayaçlarını bekleyen işlemi olmayan ve daha eski olan alanlara katar.
func (e *targetEntry) fold(t *models.Target) {
	if !e.hasPending(true) && newer(t.Version, e.voteVersion) {
		e.confirmed.VoteCount = t.VoteCount
		e.voteVersion = t.Version
	}
	if !e.hasPending(false) && newer(t.Version, e.reactionVersion) {
		e.confirmed.ReactionCounts = maps.Clone(t.ReactionCounts)
		e.reactionVersion = t.Version
	}
	e.confirmed.Version = max(e.voteVersion, e.reactionVersion)
}

func (e *targetEntry) observe(t *models.Target) {
	if len(e.pending) > 0 && (e.deferred == nil || newer(t.Version, e.deferred.Version)) {
		cp := *t
		cp.ReactionCounts = maps.Clone(t.ReactionCounts)
		e.deferred = &cp
	}
	e.fold(t)
}

// settle, bir işlem sonuçlandıktan sonra bekletilen dokümanı katar.
func (e *targetEntry) settle() {
	if e.deferred != nil {
		e.fold(e.deferred)
		if len(e.pending) == 0 {
			e.deferred = nil
		}
	}
	e.confirmed.Version = max(e.voteVersion, e.reactionVersion)
}

func (e *targetEntry) displayed() TargetState {
	s := e.confirmed.clone()
	for _, op := range e.pending {
		s = op.apply(s)
	}
	return s
}

func (e *targetEntry) remove(op *pendingOp) {
	for i, p := range e.pending {
		if p == op {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return
		}
	}
}

// Reconciler, oy ve reaksiyonları kullanıcıya anında yansıtır, sunucu
// reddederse geri alır.
//
// Rollback snapshot'a dönmez: başarısız işlem pending listesinden çıkarılır
// ve state kalan işlemlerden yeniden hesaplanır. Böylece aynı target üzerinde
// üst üste iki işlem varken biri başarısız olursa diğerinin etkisi korunur ve
// hiçbir işlem iki kez geri alınmaz. Başka bekleyen işlem yoksa sonuç,
// gönderimden hemen önceki değerin aynısıdır.
type Reconciler struct {
	api Applier

	mu       sync.Mutex
	targets  map[string]*targetEntry
	onChange func(targetID string, state TargetState)

	wg sync.WaitGroup
}

// NewReconciler, constructor. onChange nil olabilir; verilirse her state
// değişiminde (optimistic uygulama, rollback, sunucu güncellemesi) çağrılır.
func NewReconciler(api Applier, onChange func(targetID string, state TargetState)) *Reconciler {
	return &Reconciler{
		api:      api,
		targets:  make(map[string]*targetEntry),
		onChange: onChange,
	}
}

// Seed, bir target'ın sunucudan okunan başlangıç state'ini kaydeder.
// Bekleyen işlemler korunur.
func (r *Reconciler) Seed(targetID string, state TargetState) {
	r.mu.Lock()
	e := r.entry(targetID)
	e.confirmed = state.clone()
	e.voteVersion, e.reactionVersion = state.Version, state.Version
	if e.deferred != nil && !newer(e.deferred.Version, state.Version) {
		e.deferred = nil
	}
	shown := e.displayed()
	r.mu.Unlock()

	r.notify(targetID, shown)
}

// State, target'ın şu an gösterilen state'i.
func (r *Reconciler) State(targetID string) TargetState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.entry(targetID).displayed()
}

// Observe, realtime'dan gelen otoriter aggregate'leri confirmed state'e katar.
// Kullanıcının kendi durumu (MyVote/MyReaction) target dokümanında olmadığı için korunur.
// Bilinen versiyondan eski doküman yok sayılır; bekleyen işlemi olan sayaç,
// işlem sonuçlanana kadar ertelenir.
func (r *Reconciler) Observe(t *models.Target) {
	r.mu.Lock()
	e := r.entry(t.ID)
	e.observe(t)
	shown := e.displayed()
	r.mu.Unlock()

	r.notify(t.ID, shown)
}

// Op, gönderilmiş bir işlemin sonucunu beklemek için.
type Op struct {
	done chan struct{}
	err  error
}

// Wait, işlem sonuçlanana kadar bekler. Dönen hata FailureMessage ile
// kullanıcıya gösterilebilir; state zaten geri alınmıştır.
func (o *Op) Wait(ctx context.Context) error {
	select {
	case <-o.done:
		return o.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitVote, istenen oyu anında uygular ve sunucuya gönderir.
func (r *Reconciler) SubmitVote(ctx context.Context, targetID string, desired models.VoteValue) *Op {
	op := &pendingOp{isVote: true, vote: &desired}
	return r.submit(ctx, targetID, op, func(ctx context.Context) (func(*targetEntry), error) {
		res, err := r.api.ApplyVote(ctx, targetID, desired)
		if err != nil {
			return nil, err
		}
		return func(e *targetEntry) {
			if newer(res.Version, e.voteVersion) {
				e.confirmed.VoteCount = res.VoteCount
				e.voteVersion = res.Version
			}
			e.confirmed.MyVote = res.Value
		}, nil
	})
}

// ToggleVote, hedef durumu gösterilen (en güncel) state'ten hesaplar:
// aynı yöne ikinci basış, ilki henüz yanıtlanmamış olsa bile oyu kaldırır.
func (r *Reconciler) ToggleVote(ctx context.Context, targetID string, direction models.VoteValue) *Op {
	r.mu.Lock()
	desired := r.entry(targetID).displayed().MyVote.Toggle(direction)
	r.mu.Unlock()
	return r.SubmitVote(ctx, targetID, desired)
}

// SubmitReaction, istenen reaksiyonu (nil = kaldır) anında uygular ve gönderir.
func (r *Reconciler) SubmitReaction(ctx context.Context, targetID string, desired *models.ReactionType) *Op {
	op := &pendingOp{reaction: desired}
	return r.submit(ctx, targetID, op, func(ctx context.Context) (func(*targetEntry), error) {
		res, err := r.api.ApplyReaction(ctx, targetID, desired)
		if err != nil {
			return nil, err
		}
		return func(e *targetEntry) {
			if newer(res.Version, e.reactionVersion) {
				e.confirmed.ReactionCounts = maps.Clone(res.ReactionCounts)
				e.reactionVersion = res.Version
			}
			e.confirmed.MyReaction = res.Reaction
		}, nil
	})
}

// ToggleReaction, aynı tipe tekrar basmayı kaldırma olarak yorumlar.
func (r *Reconciler) ToggleReaction(ctx context.Context, targetID string, pressed models.ReactionType) *Op {
	r.mu.Lock()
	desired := models.ToggleReaction(r.entry(targetID).displayed().MyReaction, pressed)
	r.mu.Unlock()
	return r.SubmitReaction(ctx, targetID, desired)
}

func (r *Reconciler) submit(
	ctx context.Context,
	targetID string,
	op *pendingOp,
	send func(ctx context.Context) (func(*targetEntry), error),
) *Op {
	r.mu.Lock()
	e := r.entry(targetID)
	e.pending = append(e.pending, op)
	shown := e.displayed()
	r.mu.Unlock()
	r.notify(targetID, shown)

	result := &Op{done: make(chan struct{})}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(result.done)

		confirm, err := send(ctx)

		r.mu.Lock()
		e := r.entry(targetID)
		e.remove(op)
		if err == nil {
			confirm(e)
		}
		e.settle()
		shown := e.displayed()
		r.mu.Unlock()

		result.err = err
		r.notify(targetID, shown)
	}()
	return result
}

// Wait, tüm bekleyen işlemler sonuçlanana kadar bekler (Session.Close).
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) entry(targetID string) *targetEntry {
	e, ok := r.targets[targetID]
	if !ok {
		e = &targetEntry{confirmed: TargetState{ReactionCounts: make(map[models.ReactionType]int)}}
		r.targets[targetID] = e
	}
	return e
}

func (r *Reconciler) notify(targetID string, state TargetState) {
	if r.onChange != nil {
		r.onChange(targetID, state)
	}
}
