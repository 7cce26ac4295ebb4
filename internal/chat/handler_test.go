package chat

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatrooms/internal/flash"
	"chatrooms/internal/middleware"
	"chatrooms/internal/web"
)

type memFlash struct {
	notices map[string][]flash.Notice
}

func newMemFlash() *memFlash {
	return &memFlash{notices: make(map[string][]flash.Notice)}
}

func (f *memFlash) Add(_ context.Context, accountID string, n flash.Notice) error {
	f.notices[accountID] = append(f.notices[accountID], n)
	return nil
}

func (f *memFlash) Pop(_ context.Context, accountID string) ([]flash.Notice, error) {
	out := f.notices[accountID]
	delete(f.notices, accountID)
	return out, nil
}

type handlerFixture struct {
	*fixture
	flashes *memFlash
	router  chi.Router
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	f := newFixture()
	flashes := newMemFlash()
	h := NewHandler(f.svc, web.NewRenderer(zerolog.Nop()), flashes, zerolog.Nop())

	r := chi.NewRouter()
	r.Get("/", h.Home)
	r.Get("/chat/start/{username}", h.StartChat)
	r.Get("/chat/new", h.NewGroupPage)
	r.Post("/chat/new", h.NewGroup)
	r.Get("/chat/room/{roomName}", h.Room)
	r.Post("/chat/room/{roomName}", h.Room)
	r.Get("/chat/room/{roomName}/edit", h.EditPage)
	r.Post("/chat/room/{roomName}/edit", h.Edit)
	r.Get("/chat/room/{roomName}/delete", h.DeletePage)
	r.Post("/chat/room/{roomName}/delete", h.Delete)
	r.Get("/chat/room/{roomName}/leave", h.LeavePage)
	r.Post("/chat/room/{roomName}/leave", h.Leave)

	return &handlerFixture{fixture: f, flashes: flashes, router: r}
}

// do performs a request authenticated as the given account.
func (hf *handlerFixture) do(t *testing.T, method, target, accountID string, form url.Values, htmx bool) *httptest.ResponseRecorder {
	t.Helper()
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if htmx {
		req.Header.Set("HX-Request", "true")
	}

	ctx := context.WithValue(req.Context(), middleware.UserKey, accountID)
	ctx = context.WithValue(ctx, middleware.UsernameKey, hf.store.names[accountID])
	req = req.WithContext(ctx)

	rec := httptest.NewRecorder()
	hf.router.ServeHTTP(rec, req)
	return rec
}

func TestRoomPage_RendersMessagesAndForm(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")
	ctx := context.Background()

	roomName, err := hf.svc.StartDirectChat(ctx, "alice", "bob")
	req.NoError(err)
	_, err = hf.svc.PostMessage(ctx, "bob", roomName, "hey alice")
	req.NoError(err)

	rec := hf.do(t, http.MethodGet, "/chat/room/"+roomName, "alice", nil, false)
	req.Equal(http.StatusOK, rec.Code)
	page := rec.Body.String()
	req.Contains(page, "Chat with bob")
	req.Contains(page, "hey alice")
	req.Contains(page, `name="body"`)
}

func TestRoomPage_UnknownRoomIs404(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")

	rec := hf.do(t, http.MethodGet, "/chat/room/room-nope", "alice", nil, false)
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestRoomPage_PrivateRoomHiddenFromOutsiders(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")
	hf.user("eve", "eve")

	roomName, err := hf.svc.StartDirectChat(context.Background(), "alice", "bob")
	req.NoError(err)

	rec := hf.do(t, http.MethodGet, "/chat/room/"+roomName, "eve", nil, false)
	req.Equal(http.StatusNotFound, rec.Code, "an outsider must not learn the room exists")
}

func TestPostMessage_IncrementalReturnsFragment(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")

	roomName, err := hf.svc.StartDirectChat(context.Background(), "alice", "bob")
	req.NoError(err)

	form := url.Values{"body": {"hello there"}}
	rec := hf.do(t, http.MethodPost, "/chat/room/"+roomName, "alice", form, true)
	req.Equal(http.StatusCreated, rec.Code)

	fragment := rec.Body.String()
	req.Contains(fragment, "hello there")
	req.NotContains(fragment, "<html", "fragment path must not render the full page")
	req.Len(hf.store.messages, 1)
}

func TestPostMessage_EmptyBodyIsRejectedInline(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")

	roomName, err := hf.svc.StartDirectChat(context.Background(), "alice", "bob")
	req.NoError(err)

	form := url.Values{"body": {""}}
	rec := hf.do(t, http.MethodPost, "/chat/room/"+roomName, "alice", form, true)
	req.Equal(http.StatusUnprocessableEntity, rec.Code)
	req.Empty(hf.store.messages, "an invalid submission must not persist a message")
	req.Empty(rec.Header().Get("Location"), "validation failures stay on the page")
}

func TestPostMessage_NonIncrementalPostRendersFullPage(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")

	roomName, err := hf.svc.StartDirectChat(context.Background(), "alice", "bob")
	req.NoError(err)

	form := url.Values{"body": {"plain post"}}
	rec := hf.do(t, http.MethodPost, "/chat/room/"+roomName, "alice", form, false)
	req.Equal(http.StatusOK, rec.Code)
	req.Contains(rec.Body.String(), "<html")
	req.Empty(hf.store.messages, "only the incremental path persists messages")
}

func TestStartChat_RedirectsToResolvedRoom(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")

	rec := hf.do(t, http.MethodGet, "/chat/start/bob", "alice", nil, false)
	req.Equal(http.StatusSeeOther, rec.Code)
	req.True(strings.HasPrefix(rec.Header().Get("Location"), "/chat/room/"))

	// The second request lands on the same room.
	again := hf.do(t, http.MethodGet, "/chat/start/bob", "alice", nil, false)
	req.Equal(rec.Header().Get("Location"), again.Header().Get("Location"))
}

func TestStartChat_SelfChatRedirectsHomeWithNotice(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")

	rec := hf.do(t, http.MethodGet, "/chat/start/alice", "alice", nil, false)
	req.Equal(http.StatusSeeOther, rec.Code)
	req.Equal("/", rec.Header().Get("Location"))

	notices, err := hf.flashes.Pop(context.Background(), "alice")
	req.NoError(err)
	req.Len(notices, 1)
	req.Equal(flash.LevelWarning, notices[0].Level)
}

func TestStartChat_BlockedRedirectsToProfile(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")
	hf.dir.block("bob", "alice")

	rec := hf.do(t, http.MethodGet, "/chat/start/bob", "alice", nil, false)
	req.Equal(http.StatusSeeOther, rec.Code)
	req.Equal("/users/bob", rec.Header().Get("Location"))
	req.Empty(hf.store.rooms)

	notices, err := hf.flashes.Pop(context.Background(), "alice")
	req.NoError(err)
	req.Len(notices, 1)
	req.Contains(notices[0].Text, "cannot send messages")
}

func TestStartChat_UnknownUserIs404(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")

	rec := hf.do(t, http.MethodGet, "/chat/start/nobody", "alice", nil, false)
	req.Equal(http.StatusNotFound, rec.Code)
}

func TestNewGroup_CreatesAndRedirects(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")

	form := url.Values{"groupchat_name": {"gophers"}}
	rec := hf.do(t, http.MethodPost, "/chat/new", "alice", form, false)
	req.Equal(http.StatusSeeOther, rec.Code)
	req.Len(hf.store.rooms, 1)
}

func TestNewGroup_ShortNameIsRejected(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")

	form := url.Values{"groupchat_name": {"ab"}}
	rec := hf.do(t, http.MethodPost, "/chat/new", "alice", form, false)
	req.Equal(http.StatusUnprocessableEntity, rec.Code)
	req.Empty(hf.store.rooms)
	req.Contains(rec.Body.String(), `value="ab"`, "the submitted value is echoed back")
}

func TestEditPage_HidesAdminFromRemovalList(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")
	ctx := context.Background()

	room, err := hf.svc.CreateGroup(ctx, "alice", "gophers")
	req.NoError(err)
	_, err = hf.svc.OpenRoom(ctx, "bob", room.RoomName)
	req.NoError(err)

	rec := hf.do(t, http.MethodGet, "/chat/room/"+room.RoomName+"/edit", "alice", nil, false)
	req.Equal(http.StatusOK, rec.Code)
	page := rec.Body.String()
	req.Contains(page, "bob")
	req.NotContains(page, `value="alice"`, "the admin must not appear as removable")
}

func TestEditAndDelete_NonAdminGets404(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")
	ctx := context.Background()

	room, err := hf.svc.CreateGroup(ctx, "alice", "gophers")
	req.NoError(err)
	_, err = hf.svc.OpenRoom(ctx, "bob", room.RoomName)
	req.NoError(err)

	for _, target := range []string{
		"/chat/room/" + room.RoomName + "/edit",
		"/chat/room/" + room.RoomName + "/delete",
	} {
		rec := hf.do(t, http.MethodGet, target, "bob", nil, false)
		req.Equal(http.StatusNotFound, rec.Code, target)
	}
}

func TestDelete_RedirectsHomeWithNotice(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	ctx := context.Background()

	room, err := hf.svc.CreateGroup(ctx, "alice", "gophers")
	req.NoError(err)

	rec := hf.do(t, http.MethodPost, "/chat/room/"+room.RoomName+"/delete", "alice", nil, false)
	req.Equal(http.StatusSeeOther, rec.Code)
	req.Equal("/", rec.Header().Get("Location"))
	req.Empty(hf.store.rooms)

	notices, err := hf.flashes.Pop(ctx, "alice")
	req.NoError(err)
	req.Len(notices, 1)
	req.Equal(flash.LevelSuccess, notices[0].Level)
}

func TestLeave_RedirectsHomeWithNotice(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	hf.user("bob", "bob")
	ctx := context.Background()

	room, err := hf.svc.CreateGroup(ctx, "alice", "gophers")
	req.NoError(err)
	_, err = hf.svc.OpenRoom(ctx, "bob", room.RoomName)
	req.NoError(err)

	rec := hf.do(t, http.MethodPost, "/chat/room/"+room.RoomName+"/leave", "bob", nil, false)
	req.Equal(http.StatusSeeOther, rec.Code)
	req.Equal("/", rec.Header().Get("Location"))

	members, err := hf.store.Members(ctx, room.ID)
	req.NoError(err)
	req.Len(members, 1)
}

func TestHome_ListsRoomsAndDrainsNotices(t *testing.T) {
	req := require.New(t)
	hf := newHandlerFixture(t)
	hf.user("alice", "alice")
	ctx := context.Background()

	_, err := hf.svc.CreateGroup(ctx, "alice", "gophers")
	req.NoError(err)
	req.NoError(hf.flashes.Add(ctx, "alice", flash.Notice{Level: flash.LevelSuccess, Text: "Welcome back."}))

	rec := hf.do(t, http.MethodGet, "/", "alice", nil, false)
	req.Equal(http.StatusOK, rec.Code)
	page := rec.Body.String()
	req.Contains(page, "gophers")
	req.Contains(page, "Welcome back.")

	// Notices are one-shot.
	again := hf.do(t, http.MethodGet, "/", "alice", nil, false)
	req.NotContains(again.Body.String(), "Welcome back.")
}
