package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hugh/medpocket/internal/cards/filter"
	"github.com/hugh/medpocket/internal/cards/types"
	"github.com/hugh/medpocket/internal/client"
	"github.com/hugh/medpocket/pkg/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errOffline = fmt.Errorf("dial: %w", client.ErrUnavailable)

// fakeCardAPI is an in-memory server. Setting err makes every call fail.
type fakeCardAPI struct {
	mu      sync.Mutex
	cards   map[string]types.Card
	order   []string
	nextID  int
	err     error
	deleted []string
}

func newFakeCardAPI(cards ...types.Card) *fakeCardAPI {
	f := &fakeCardAPI{cards: make(map[string]types.Card)}
	for _, c := range cards {
		f.cards[c.ID] = c
		f.order = append(f.order, c.ID)
	}
	return f
}

func (f *fakeCardAPI) ListCards(context.Context, client.CardQuery) ([]types.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []types.Card
	for _, id := range f.order {
		if c, ok := f.cards[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeCardAPI) CreateCard(_ context.Context, c types.Card) (types.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.Card{}, f.err
	}
	f.nextID++
	c.ID = fmt.Sprintf("srv-%d", f.nextID)
	f.cards[c.ID] = c
	f.order = append(f.order, c.ID)
	return c, nil
}

func (f *fakeCardAPI) UpdateCard(_ context.Context, id string, patch client.CardPatch) (types.Card, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return types.Card{}, f.err
	}
	c, ok := f.cards[id]
	if !ok {
		return types.Card{}, &client.APIError{StatusCode: 404, Message: "Card not found"}
	}
	patch.Apply(&c)
	f.cards[id] = c
	return c, nil
}

func (f *fakeCardAPI) DeleteCard(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if _, ok := f.cards[id]; !ok {
		return &client.APIError{StatusCode: 404, Message: "Card not found"}
	}
	delete(f.cards, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeCardAPI) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func card(id, title string, mutate ...func(*types.Card)) types.Card {
	c := types.Card{
		ID:        id,
		Specialty: "obstetrics",
		Sections:  []string{types.SectionConsultations},
		Title:     types.Plain(title),
		Content:   types.Plain("<p>" + title + "</p>"),
		Tags:      []string{},
		Urgency:   types.UrgencyStandard,
	}
	for _, m := range mutate {
		m(&c)
	}
	return c
}

func newLoadedStore(t *testing.T, api *fakeCardAPI) (*CardStore, Storage) {
	t.Helper()
	storage := NewMemoryStorage()
	s := NewCardStore(api, storage, util.Discard())
	s.now = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
	status, err := s.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, SyncPersisted, status)
	return s, storage
}

func ids(cards []types.Card) []string {
	out := make([]string, len(cards))
	for i, c := range cards {
		out[i] = c.ID
	}
	return out
}

func TestCardStore_AddPersisted(t *testing.T) {
	api := newFakeCardAPI()
	s, _ := newLoadedStore(t, api)

	res, err := s.Add(context.Background(), types.Card{Title: types.Plain("Oxytocin")})
	require.NoError(t, err)
	assert.Equal(t, SyncPersisted, res.Sync)
	assert.Equal(t, "srv-1", res.Card.ID)
	assert.Equal(t, types.UrgencyStandard, res.Card.Urgency)
	assert.Equal(t, []string{"srv-1"}, ids(s.Cards()))
}

func TestCardStore_AddFallsBackWhenOffline(t *testing.T) {
	api := newFakeCardAPI()
	s, storage := newLoadedStore(t, api)
	api.setErr(errOffline)

	res, err := s.Add(context.Background(), types.Card{Title: types.Plain("Oxytocin")})
	require.NoError(t, err)
	assert.Equal(t, SyncLocalOnly, res.Sync)
	assert.ErrorIs(t, res.Err, client.ErrUnavailable)
	assert.True(t, strings.HasPrefix(res.Card.ID, "local-"))
	assert.False(t, res.Card.CreatedAt.IsZero())

	raw, err := storage.Get(context.Background(), KeyCards)
	require.NoError(t, err)
	assert.Contains(t, string(raw), res.Card.ID)
}

func TestCardStore_AddRejectedIsNotStored(t *testing.T) {
	api := newFakeCardAPI()
	s, _ := newLoadedStore(t, api)
	api.setErr(&client.APIError{StatusCode: 400, Message: "Validation failed"})

	_, err := s.Add(context.Background(), types.Card{})
	assert.ErrorIs(t, err, client.ErrBadRequest)
	assert.Empty(t, s.Cards())
}

func TestCardStore_Update(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI(card("c1", "Preeclampsia"))
	s, _ := newLoadedStore(t, api)

	title := types.Plain("Severe preeclampsia")
	res, err := s.Update(ctx, "c1", client.CardPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, SyncPersisted, res.Sync)

	api.setErr(errOffline)
	urgency := types.UrgencyUrgent
	res, err = s.Update(ctx, "c1", client.CardPatch{Urgency: &urgency})
	require.NoError(t, err)
	assert.Equal(t, SyncLocalOnly, res.Sync)

	got, ok := s.Card("c1")
	require.True(t, ok)
	assert.Equal(t, "Severe preeclampsia", got.Title.String())
	assert.Equal(t, types.UrgencyUrgent, got.Urgency)

	_, err = s.Update(ctx, "nope", client.CardPatch{Title: &title})
	assert.ErrorIs(t, err, ErrCardNotFound)
}

func TestCardStore_LocalCardsNeverReachServer(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI()
	s, _ := newLoadedStore(t, api)

	api.setErr(errOffline)
	res, err := s.Add(ctx, types.Card{Title: types.Plain("Draft")})
	require.NoError(t, err)
	api.setErr(nil)

	title := types.Plain("Draft v2")
	upd, err := s.Update(ctx, res.Card.ID, client.CardPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, SyncLocalOnly, upd.Sync)
	assert.Nil(t, upd.Err)

	status, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncPersisted, status)
	assert.Equal(t, []string{res.Card.ID}, ids(s.Cards()), "offline cards survive a refresh")

	status, err = s.Delete(ctx, res.Card.ID)
	require.NoError(t, err)
	assert.Equal(t, SyncLocalOnly, status)
	assert.Empty(t, api.deleted)
}

func TestCardStore_TrashRestore(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI(card("c1", "A"), card("c2", "B"))
	s, _ := newLoadedStore(t, api)

	fav, err := s.ToggleFavorite(ctx, "c1")
	require.NoError(t, err)
	require.True(t, fav)

	require.NoError(t, s.Trash(ctx, "c1"))
	assert.Equal(t, []string{"c2"}, ids(s.Cards()))
	trashed := s.Trashed()
	require.Len(t, trashed, 1)
	require.NotNil(t, trashed[0].TrashedAt)
	assert.False(t, s.IsFavorite("c1"), "trashing unfavorites")

	// A refresh keeps trashed cards out of the active list.
	_, err = s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"c2"}, ids(s.Cards()))

	require.NoError(t, s.Restore(ctx, "c1"))
	assert.Equal(t, []string{"c1", "c2"}, ids(s.Cards()))
	assert.Empty(t, s.Trashed())
	got, _ := s.Card("c1")
	assert.Nil(t, got.TrashedAt)

	assert.ErrorIs(t, s.Trash(ctx, "missing"), ErrCardNotFound)
	assert.ErrorIs(t, s.Restore(ctx, "missing"), ErrCardNotFound)
}

func TestCardStore_PermanentDelete(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI(card("c1", "A"), card("c2", "B"), card("c3", "C"))
	s, _ := newLoadedStore(t, api)

	require.NoError(t, s.TrackRecent(ctx, "c1"))
	require.NoError(t, s.Trash(ctx, "c1"))
	status, err := s.PermanentlyDelete(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, SyncPersisted, status)
	assert.Equal(t, []string{"c1"}, api.deleted)
	assert.Empty(t, s.Trashed())

	_, err = s.PermanentlyDelete(ctx, "c2")
	assert.ErrorIs(t, err, ErrCardNotFound, "only trashed cards")

	require.NoError(t, s.Trash(ctx, "c2"))
	require.NoError(t, s.Trash(ctx, "c3"))
	api.setErr(errOffline)
	status, err = s.EmptyTrash(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncLocalOnly, status)
	assert.Empty(t, s.Trashed())
}

func TestCardStore_DeleteAlreadyGoneOnServer(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI(card("c1", "A"))
	s, _ := newLoadedStore(t, api)
	require.NoError(t, api.DeleteCard(ctx, "c1"))

	status, err := s.Delete(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, SyncPersisted, status)
	assert.Empty(t, s.Cards())
}

func TestCardStore_Favorites(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI(card("c1", "A"), card("c2", "B"))
	s, _ := newLoadedStore(t, api)

	for _, id := range []string{"c1", "c2"} {
		_, err := s.ToggleFavorite(ctx, id)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"c2", "c1"}, ids(s.FavoriteCards()))

	fav, err := s.ToggleFavorite(ctx, "c2")
	require.NoError(t, err)
	assert.False(t, fav)
	assert.Equal(t, []string{"c1"}, ids(s.FavoriteCards()))

	got := s.Filter(filter.Spec{FavoritesOnly: true})
	assert.Equal(t, []string{"c1"}, ids(got))
}

func TestCardStore_Recents(t *testing.T) {
	ctx := context.Background()
	var seed []types.Card
	for i := 1; i <= 12; i++ {
		seed = append(seed, card(fmt.Sprintf("c%d", i), fmt.Sprintf("Card %d", i)))
	}
	api := newFakeCardAPI(seed...)
	s, storage := newLoadedStore(t, api)

	for i := 1; i <= 12; i++ {
		require.NoError(t, s.TrackRecent(ctx, fmt.Sprintf("c%d", i)))
	}
	require.NoError(t, s.TrackRecent(ctx, "c5"))

	var stored []string
	_, err := loadJSON(ctx, storage, KeyRecents, &stored)
	require.NoError(t, err)
	assert.Len(t, stored, maxRecents)
	assert.Equal(t, "c5", stored[0])
	assert.NotContains(t, stored, "c1")

	assert.Equal(t, []string{"c5", "c12", "c11", "c10", "c9"}, ids(s.RecentCards()))

	require.NoError(t, s.Trash(ctx, "c12"))
	assert.Equal(t, []string{"c5", "c11", "c10", "c9", "c8"}, ids(s.RecentCards()))
}

func TestCardStore_CardsBySection(t *testing.T) {
	api := newFakeCardAPI(
		card("c1", "A", func(c *types.Card) { c.Sections = []string{types.SectionPrescriptions} }),
		card("c2", "B", func(c *types.Card) {
			c.Sections = []string{types.SectionPrescriptions, types.SectionUrgences}
			c.Specialty = "surgery"
		}),
		card("c3", "C"),
	)
	s, _ := newLoadedStore(t, api)

	assert.Equal(t, []string{"c1"}, ids(s.CardsBySection("obstetrics", types.SectionPrescriptions)))
	assert.Equal(t, []string{"c2"}, ids(s.CardsBySection("surgery", types.SectionUrgences)))
	assert.Empty(t, s.CardsBySection("gynecology", types.SectionPrescriptions))
}

func TestCardStore_LoadOffline(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI(card("c1", "A"))
	s, storage := newLoadedStore(t, api)
	_, err := s.ToggleFavorite(ctx, "c1")
	require.NoError(t, err)

	api.setErr(errOffline)
	fresh := NewCardStore(api, storage, util.Discard())
	status, err := fresh.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, SyncLocalOnly, status)
	assert.Equal(t, []string{"c1"}, ids(fresh.Cards()))
	assert.True(t, fresh.IsFavorite("c1"))

	api.setErr(&client.APIError{StatusCode: 401, Message: "Unauthorized"})
	_, err = fresh.Load(ctx)
	assert.ErrorIs(t, err, client.ErrUnauthorized)
}

func TestCardStore_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	api := newFakeCardAPI(card("c1", "A"), card("c2", "B"))
	s, _ := newLoadedStore(t, api)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "c1"
			if i%2 == 0 {
				id = "c2"
			}
			assert.NoError(t, s.TrackRecent(ctx, id))
			_ = s.RecentCards()
			_ = s.Filter(filter.Spec{Sort: filter.SortTitle})
		}(i)
	}
	wg.Wait()

	assert.ElementsMatch(t, []string{"c1", "c2"}, ids(s.RecentCards()))
}
