// Package memory is an in-process implementation of the repository
// interfaces, used by service and HTTP tests. Transactions are serialized
// and roll back by restoring a snapshot.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"shop-service/models"
	"shop-service/repository"
)

type cartKey struct {
	userID    string
	productID string
}

type state struct {
	products   map[string]models.Product
	users      map[string]models.User
	orders     map[string]models.Order
	reviews    map[string]models.Review
	promotions map[string]models.Promotion
	outbox     []models.OutboxEvent
	cart       map[cartKey]models.CartItem
	nextOutbox int64
	nextCart   int64
}

func (s *state) clone() *state {
	c := &state{
		products:   make(map[string]models.Product, len(s.products)),
		users:      make(map[string]models.User, len(s.users)),
		orders:     make(map[string]models.Order, len(s.orders)),
		reviews:    make(map[string]models.Review, len(s.reviews)),
		promotions: make(map[string]models.Promotion, len(s.promotions)),
		outbox:     append([]models.OutboxEvent(nil), s.outbox...),
		cart:       make(map[cartKey]models.CartItem, len(s.cart)),
		nextOutbox: s.nextOutbox,
		nextCart:   s.nextCart,
	}
	for k, v := range s.products {
		c.products[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.orders {
		v.Items = append([]models.OrderItem(nil), v.Items...)
		c.orders[k] = v
	}
	for k, v := range s.reviews {
		c.reviews[k] = v
	}
	for k, v := range s.promotions {
		c.promotions[k] = v
	}
	for k, v := range s.cart {
		c.cart[k] = v
	}
	return c
}

// Store holds every table. Use the typed views (Products, Orders, ...) as
// the repositories.
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex
	st   *state

	// BeforeInsertOrder, when set, runs inside the transaction before an
	// order is inserted; a non-nil error aborts the insert.
	BeforeInsertOrder func(o *models.Order) error
	// OnRollback, when set, runs after a failed transaction was undone.
	OnRollback func()
	// CartClearErr makes Carts().Clear fail.
	CartClearErr error
}

func New() *Store {
	return &Store{st: newState()}
}

func newState() *state {
	return &state{
		products:   map[string]models.Product{},
		users:      map[string]models.User{},
		orders:     map[string]models.Order{},
		reviews:    map[string]models.Review{},
		promotions: map[string]models.Promotion{},
		cart:       map[cartKey]models.CartItem{},
	}
}

func (s *Store) Products() *Products     { return &Products{s} }
func (s *Store) Users() *Users           { return &Users{s} }
func (s *Store) Orders() *Orders         { return &Orders{s} }
func (s *Store) Reviews() *Reviews       { return &Reviews{s} }
func (s *Store) Promotions() *Promotions { return &Promotions{s} }
func (s *Store) Outbox() *Outbox         { return &Outbox{s} }
func (s *Store) Carts() *Carts           { return &Carts{s} }

// InTx runs fn with exclusive access to the store, restoring the prior
// state when fn fails.
func (s *Store) InTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	if err := fn(&tx{s: s}); err != nil {
		s.mu.Lock()
		s.st = snapshot
		s.mu.Unlock()
		if s.OnRollback != nil {
			s.OnRollback()
		}
		return err
	}
	return nil
}

// OutboxEvents returns every recorded event, delivered or not.
func (s *Store) OutboxEvents() []models.OutboxEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.OutboxEvent(nil), s.st.outbox...)
}

type tx struct {
	s *Store
}

func (t *tx) LockProduct(ctx context.Context, id string) (*models.Product, error) {
	return t.s.Products().FindByID(ctx, id)
}

func (t *tx) DecrementStock(ctx context.Context, id string, qty int) error {
	return t.s.Products().DecrementStock(ctx, id, qty)
}

func (t *tx) FindOrderByIdempotencyKey(ctx context.Context, userID, key string) (*models.Order, error) {
	return t.s.Orders().FindByIdempotencyKey(ctx, userID, key)
}

func (t *tx) InsertOrder(ctx context.Context, o *models.Order) error {
	if hook := t.s.BeforeInsertOrder; hook != nil {
		if err := hook(o); err != nil {
			return err
		}
	}
	return t.s.Orders().Insert(ctx, o)
}

func (t *tx) LockOrder(ctx context.Context, id string) (*models.Order, error) {
	return t.s.Orders().FindByID(ctx, id)
}

func (t *tx) UpdateOrderStatus(ctx context.Context, o *models.Order) error {
	return t.s.Orders().UpdateStatus(ctx, o)
}

func (t *tx) InsertPromotion(ctx context.Context, p *models.Promotion) error {
	return t.s.Promotions().Create(ctx, p)
}

func (t *tx) AddOutboxEvent(ctx context.Context, ev models.Event) error {
	_, err := t.s.Outbox().Add(ctx, ev)
	return err
}

type Products struct{ s *Store }

func (r *Products) List(context.Context) ([]models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Product, 0, len(r.s.st.products))
	for _, p := range r.s.st.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Products) FindByID(_ context.Context, id string) (*models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *Products) FindByIDs(_ context.Context, ids []string) ([]models.Product, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Product{}
	for _, id := range ids {
		if p, ok := r.s.st.products[id]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Products) Create(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.products[p.ID]; ok {
		return repository.ErrDuplicate
	}
	r.s.st.products[p.ID] = *p
	return nil
}

func (r *Products) Update(_ context.Context, p *models.Product) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.products[p.ID]; !ok {
		return repository.ErrNotFound
	}
	r.s.st.products[p.ID] = *p
	return nil
}

func (r *Products) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.products[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.products, id)
	return nil
}

func (r *Products) DecrementStock(_ context.Context, id string, qty int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.products[id]
	if !ok || p.StockQuantity < qty {
		return repository.ErrStockConflict
	}
	p.StockQuantity -= qty
	r.s.st.products[id] = p
	return nil
}

type Users struct{ s *Store }

func (r *Users) find(match func(models.User) bool) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.st.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Users) FindByID(_ context.Context, id string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.ID == id })
}

func (r *Users) FindByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email })
}

func (r *Users) FindByGoogle(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u models.User) bool { return u.Email == email || (u.GoogleID != "" && u.GoogleID == email) })
}

func (r *Users) FindByFacebook(_ context.Context, email, facebookID string) (*models.User, error) {
	return r.find(func(u models.User) bool {
		return (email != "" && u.Email == email) || (facebookID != "" && u.FacebookID == facebookID)
	})
}

func (r *Users) Create(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.users {
		if existing.ID == u.ID || (u.Email != "" && strings.EqualFold(existing.Email, u.Email)) {
			return repository.ErrDuplicate
		}
	}
	r.s.st.users[u.ID] = *u
	return nil
}

func (r *Users) Update(_ context.Context, u *models.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.st.users[u.ID]
	if !ok {
		return repository.ErrNotFound
	}
	for _, existing := range r.s.st.users {
		if existing.ID != u.ID && u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return repository.ErrDuplicate
		}
	}
	updated := *u
	updated.PushToken = current.PushToken
	updated.PasswordHash = current.PasswordHash
	r.s.st.users[u.ID] = updated
	return nil
}

func (r *Users) SetPushToken(_ context.Context, id, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.PushToken = token
	r.s.st.users[id] = u
	return nil
}

func (r *Users) SetAdmin(_ context.Context, id string, admin bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.st.users[id]
	if !ok {
		return repository.ErrNotFound
	}
	u.IsAdmin = admin
	r.s.st.users[id] = u
	return nil
}

func (r *Users) ListWithPushToken(context.Context) ([]models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.User
	for _, u := range r.s.st.users {
		if u.PushToken != "" {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type Orders struct{ s *Store }

func copyOrder(o models.Order) *models.Order {
	o.Items = append([]models.OrderItem{}, o.Items...)
	return &o
}

func (r *Orders) Insert(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.orders {
		if existing.ID == o.ID {
			return repository.ErrDuplicate
		}
		if o.IdempotencyKey != "" && existing.UserID == o.UserID && existing.IdempotencyKey == o.IdempotencyKey {
			return repository.ErrDuplicate
		}
	}
	r.s.st.orders[o.ID] = *copyOrder(*o)
	return nil
}

func (r *Orders) FindByID(_ context.Context, id string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	o, ok := r.s.st.orders[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyOrder(o), nil
}

func (r *Orders) FindByIdempotencyKey(_ context.Context, userID, key string) (*models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.st.orders {
		if o.UserID == userID && o.IdempotencyKey == key {
			return copyOrder(o), nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Orders) UpdateStatus(_ context.Context, o *models.Order) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.st.orders[o.ID]
	if !ok {
		return repository.ErrNotFound
	}
	current.Status = o.Status
	current.DeliveredAt = o.DeliveredAt
	current.UpdatedAt = o.UpdatedAt
	r.s.st.orders[o.ID] = current
	return nil
}

func (r *Orders) list(match func(models.Order) bool) []models.Order {
	out := []models.Order{}
	for _, o := range r.s.st.orders {
		if match(o) {
			out = append(out, *copyOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Orders) ListByUser(_ context.Context, userID string) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	return r.list(func(o models.Order) bool { return o.UserID == userID }), nil
}

func (r *Orders) ListAll(context.Context) ([]models.Order, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := r.list(func(models.Order) bool { return true })
	for i := range out {
		u := r.s.st.users[out[i].UserID]
		out[i].User = &models.UserSummary{ID: out[i].UserID, Name: u.Name, Email: u.Email}
	}
	return out, nil
}

func (r *Orders) HasPurchased(_ context.Context, userID, productID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, o := range r.s.st.orders {
		if o.UserID != userID || (o.Status != models.OrderStatusShipped && o.Status != models.OrderStatusDelivered) {
			continue
		}
		for _, it := range o.Items {
			if it.ProductID == productID {
				return true, nil
			}
		}
	}
	return false, nil
}

type Reviews struct{ s *Store }

func (r *Reviews) Create(_ context.Context, rv *models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.reviews {
		if existing.ID == rv.ID || (existing.UserID == rv.UserID && existing.ProductID == rv.ProductID) {
			return repository.ErrDuplicate
		}
	}
	r.s.st.reviews[rv.ID] = *rv
	return nil
}

func (r *Reviews) Update(_ context.Context, rv *models.Review) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	current, ok := r.s.st.reviews[rv.ID]
	if !ok {
		return repository.ErrNotFound
	}
	current.Rating, current.Comment, current.Image, current.UpdatedAt = rv.Rating, rv.Comment, rv.Image, rv.UpdatedAt
	r.s.st.reviews[rv.ID] = current
	return nil
}

func (r *Reviews) withUser(rv models.Review) models.Review {
	u := r.s.st.users[rv.UserID]
	rv.User = &models.UserSummary{ID: rv.UserID, Name: u.Name, ProfileImage: u.ProfileImage}
	return rv
}

func (r *Reviews) FindByID(_ context.Context, id string) (*models.Review, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	rv, ok := r.s.st.reviews[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	rv = r.withUser(rv)
	return &rv, nil
}

func (r *Reviews) ExistsForUser(_ context.Context, userID, productID string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, rv := range r.s.st.reviews {
		if rv.UserID == userID && rv.ProductID == productID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Reviews) list(match func(models.Review) bool, decorate func(models.Review) models.Review) []models.Review {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Review{}
	for _, rv := range r.s.st.reviews {
		if match(rv) {
			out = append(out, decorate(rv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (r *Reviews) ListByProduct(_ context.Context, productID string) ([]models.Review, error) {
	return r.list(func(rv models.Review) bool { return rv.ProductID == productID }, r.withUser), nil
}

func (r *Reviews) ListByUser(_ context.Context, userID string) ([]models.Review, error) {
	return r.list(func(rv models.Review) bool { return rv.UserID == userID }, func(rv models.Review) models.Review {
		p := r.s.st.products[rv.ProductID]
		rv.Product = &models.ReviewProduct{ID: rv.ProductID, Name: p.Name, Image: p.Image}
		return rv
	}), nil
}

type Promotions struct{ s *Store }

func (r *Promotions) List(context.Context) ([]models.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Promotion{}
	for _, p := range r.s.st.promotions {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *Promotions) FindByID(_ context.Context, id string) (*models.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.st.promotions[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (r *Promotions) FindByCode(_ context.Context, code string) (*models.Promotion, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, p := range r.s.st.promotions {
		if p.Code == code {
			return &p, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *Promotions) Create(_ context.Context, p *models.Promotion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.st.promotions {
		if existing.ID == p.ID || existing.Code == p.Code {
			return repository.ErrDuplicate
		}
	}
	r.s.st.promotions[p.ID] = *p
	return nil
}

func (r *Promotions) Update(_ context.Context, p *models.Promotion) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.promotions[p.ID]; !ok {
		return repository.ErrNotFound
	}
	for _, existing := range r.s.st.promotions {
		if existing.ID != p.ID && existing.Code == p.Code {
			return repository.ErrDuplicate
		}
	}
	r.s.st.promotions[p.ID] = *p
	return nil
}

func (r *Promotions) Delete(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.st.promotions[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.s.st.promotions, id)
	return nil
}

type Outbox struct{ s *Store }

func (r *Outbox) Add(_ context.Context, ev models.Event) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.st.nextOutbox++
	ev.ID = r.s.st.nextOutbox
	r.s.st.outbox = append(r.s.st.outbox, models.OutboxEvent{Event: ev, NextAttemptAt: ev.Occurred})
	return ev.ID, nil
}

func (r *Outbox) FetchPending(_ context.Context, now time.Time, limit int) ([]models.OutboxEvent, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.OutboxEvent
	for _, ev := range r.s.st.outbox {
		if ev.PublishedAt == nil && ev.FailedAt == nil && !ev.NextAttemptAt.After(now) {
			out = append(out, ev)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *Outbox) update(id int64, fn func(*models.OutboxEvent)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.st.outbox {
		if r.s.st.outbox[i].ID == id {
			fn(&r.s.st.outbox[i])
			return nil
		}
	}
	return repository.ErrNotFound
}

func (r *Outbox) MarkPublished(_ context.Context, id int64, at time.Time) error {
	return r.update(id, func(ev *models.OutboxEvent) { ev.PublishedAt = &at })
}

func (r *Outbox) MarkRetry(_ context.Context, id int64, attempts int, next time.Time, lastErr string) error {
	return r.update(id, func(ev *models.OutboxEvent) {
		ev.Attempts, ev.NextAttemptAt, ev.LastError = attempts, next, lastErr
	})
}

func (r *Outbox) MarkFailed(_ context.Context, id int64, at time.Time, lastErr string) error {
	return r.update(id, func(ev *models.OutboxEvent) { ev.FailedAt, ev.LastError = &at, lastErr })
}

type Carts struct{ s *Store }

func (r *Carts) ListByUser(_ context.Context, userID string) ([]models.CartItem, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.CartItem{}
	for k, it := range r.s.st.cart {
		if k.userID == userID {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *Carts) Upsert(_ context.Context, userID, productID string, quantity int, now time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := cartKey{userID, productID}
	it, ok := r.s.st.cart[key]
	if !ok {
		r.s.st.nextCart++
		it = models.CartItem{ID: r.s.st.nextCart, UserID: userID, ProductID: productID, CreatedAt: now}
	}
	it.Quantity, it.UpdatedAt = quantity, now
	r.s.st.cart[key] = it
	return nil
}

func (r *Carts) Remove(_ context.Context, userID, productID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.st.cart, cartKey{userID, productID})
	return nil
}

func (r *Carts) Clear(_ context.Context, userID string) error {
	if r.s.CartClearErr != nil {
		return r.s.CartClearErr
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for k := range r.s.st.cart {
		if k.userID == userID {
			delete(r.s.st.cart, k)
		}
	}
	return nil
}
