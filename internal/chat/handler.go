package chat

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"chatrooms/internal/flash"
	"chatrooms/internal/middleware"
	"chatrooms/internal/validate"
	"chatrooms/internal/web"
)

type Handler struct {
	svc      *Service
	renderer *web.Renderer
	flashes  flash.Store
	logger   zerolog.Logger
}

func NewHandler(svc *Service, renderer *web.Renderer, flashes flash.Store, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, renderer: renderer, flashes: flashes, logger: logger}
}

type homePage struct {
	Identity middleware.Identity
	Notices  []flash.Notice
	Rooms    []RoomSummary
}

type messageView struct {
	Message
	Mine bool
}

type messageFormView struct {
	RoomName string
	Body     string
	Errors   validate.FieldErrors
}

type chatPage struct {
	Title    string
	Room     *Room
	Members  []Member
	Messages []messageView
	Form     messageFormView
	Notices  []flash.Notice
	IsAdmin  bool
}

type groupFormPage struct {
	GroupchatName string
	Errors        validate.FieldErrors
}

type editPage struct {
	Room          *Room
	GroupchatName string
	Members       []Member
	Errors        validate.FieldErrors
}

type confirmPage struct {
	Room *Room
}

// Home renders the conversation list, draining pending notices.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	rooms, err := h.svc.Home(r.Context(), id.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("room list failed")
		h.renderer.ServerError(w)
		return
	}

	notices, err := h.flashes.Pop(r.Context(), id.ID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("flash pop failed")
	}

	h.renderer.HTML(w, http.StatusOK, "home.html", homePage{
		Identity: id,
		Notices:  notices,
		Rooms:    rooms,
	})
}

// StartChat finds or creates the private room with the target user and
// redirects to it.
func (h *Handler) StartChat(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	targetUsername := chi.URLParam(r, "username")

	roomName, err := h.svc.StartDirectChat(r.Context(), id.ID, targetUsername)
	switch {
	case err == nil:
		http.Redirect(w, r, "/chat/room/"+roomName, http.StatusSeeOther)
	case errors.Is(err, ErrSelfChat):
		h.addFlash(r, id.ID, flash.LevelWarning, "You cannot start a chat with yourself.")
		http.Redirect(w, r, "/", http.StatusSeeOther)
	case errors.Is(err, ErrBlocked):
		h.addFlash(r, id.ID, flash.LevelWarning, "You cannot send messages to this user.")
		http.Redirect(w, r, "/users/"+targetUsername, http.StatusSeeOther)
	case errors.Is(err, ErrNotFound):
		h.renderer.NotFound(w)
	default:
		h.logger.Error().Err(err).Str("target", targetUsername).Msg("start chat failed")
		h.renderer.ServerError(w)
	}
}

// Room serves the room page. An HX-Request POST carrying message data
// takes the fragment path instead (message submission); everything else
// gets the full page.
func (h *Handler) Room(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	roomName := chi.URLParam(r, "roomName")

	if r.Method == http.MethodPost && r.Header.Get("HX-Request") == "true" {
		h.postMessage(w, r, id, roomName)
		return
	}

	view, err := h.svc.OpenRoom(r.Context(), id.ID, roomName)
	if err != nil {
		h.roomError(w, err, "open room failed")
		return
	}

	notices, err := h.flashes.Pop(r.Context(), id.ID)
	if err != nil {
		h.logger.Warn().Err(err).Msg("flash pop failed")
	}

	msgs := make([]messageView, len(view.Messages))
	for i, m := range view.Messages {
		msgs[i] = messageView{Message: m, Mine: m.AuthorID == id.ID}
	}

	title := view.Room.GroupchatName
	if view.Room.IsPrivate {
		title = "Chat"
		if view.OtherUser != nil {
			title = "Chat with " + view.OtherUser.Username
		}
	}

	h.renderer.HTML(w, http.StatusOK, "chat.html", chatPage{
		Title:    title,
		Room:     view.Room,
		Members:  view.Members,
		Messages: msgs,
		Form:     messageFormView{RoomName: view.Room.RoomName},
		Notices:  notices,
		IsAdmin:  view.IsAdmin,
	})
}

// postMessage is the incremental path: validate, persist, and return a
// fragment for exactly the new message.
func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request, id middleware.Identity, roomName string) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	form := MessageForm{Body: r.PostFormValue("body")}
	if errs := validate.Struct(form); errs != nil {
		// Inline validation error, no redirect and no Message row.
		h.renderer.HTML(w, http.StatusUnprocessableEntity, "chat_form", messageFormView{
			RoomName: roomName,
			Body:     form.Body,
			Errors:   errs,
		})
		return
	}

	msg, err := h.svc.PostMessage(r.Context(), id.ID, roomName, form.Body)
	if err != nil {
		h.roomError(w, err, "post message failed")
		return
	}

	h.renderer.HTML(w, http.StatusCreated, "chat_message", messageView{Message: *msg, Mine: true})
}

func (h *Handler) NewGroupPage(w http.ResponseWriter, r *http.Request) {
	h.renderer.HTML(w, http.StatusOK, "groupchat_new.html", groupFormPage{})
}

func (h *Handler) NewGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		h.renderer.HTML(w, http.StatusBadRequest, "groupchat_new.html", groupFormPage{})
		return
	}

	form := NewGroupForm{GroupchatName: r.PostFormValue("groupchat_name")}
	if errs := validate.Struct(form); errs != nil {
		h.renderer.HTML(w, http.StatusUnprocessableEntity, "groupchat_new.html", groupFormPage{
			GroupchatName: form.GroupchatName,
			Errors:        errs,
		})
		return
	}

	room, err := h.svc.CreateGroup(r.Context(), id.ID, form.GroupchatName)
	if err != nil {
		h.logger.Error().Err(err).Msg("create group failed")
		h.renderer.ServerError(w)
		return
	}
	http.Redirect(w, r, "/chat/room/"+room.RoomName, http.StatusSeeOther)
}

func (h *Handler) EditPage(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	roomName := chi.URLParam(r, "roomName")

	room, err := h.svc.AdminRoom(r.Context(), id.ID, roomName)
	if err != nil {
		h.roomError(w, err, "edit page failed")
		return
	}

	h.renderEditPage(w, r, room, room.GroupchatName, nil, http.StatusOK)
}

func (h *Handler) Edit(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}
	roomName := chi.URLParam(r, "roomName")

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form submission", http.StatusBadRequest)
		return
	}

	form := EditRoomForm{
		GroupchatName: r.PostFormValue("groupchat_name"),
		RemoveMembers: r.PostForm["remove_members"],
	}

	if errs := validate.Struct(form); errs != nil {
		room, err := h.svc.AdminRoom(r.Context(), id.ID, roomName)
		if err != nil {
			h.roomError(w, err, "edit failed")
			return
		}
		h.renderEditPage(w, r, room, form.GroupchatName, errs, http.StatusUnprocessableEntity)
		return
	}

	if _, err := h.svc.EditRoom(r.Context(), id.ID, roomName, form); err != nil {
		h.roomError(w, err, "edit failed")
		return
	}
	http.Redirect(w, r, "/chat/room/"+roomName, http.StatusSeeOther)
}

func (h *Handler) DeletePage(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	room, err := h.svc.AdminRoom(r.Context(), id.ID, chi.URLParam(r, "roomName"))
	if err != nil {
		h.roomError(w, err, "delete page failed")
		return
	}
	h.renderer.HTML(w, http.StatusOK, "room_delete.html", confirmPage{Room: room})
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := h.svc.DeleteRoom(r.Context(), id.ID, chi.URLParam(r, "roomName")); err != nil {
		h.roomError(w, err, "delete failed")
		return
	}

	h.addFlash(r, id.ID, flash.LevelSuccess, "Group chat deleted successfully.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) LeavePage(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	room, err := h.svc.MemberRoom(r.Context(), id.ID, chi.URLParam(r, "roomName"))
	if err != nil {
		h.roomError(w, err, "leave page failed")
		return
	}
	h.renderer.HTML(w, http.StatusOK, "room_leave.html", confirmPage{Room: room})
}

func (h *Handler) Leave(w http.ResponseWriter, r *http.Request) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	if err := h.svc.LeaveRoom(r.Context(), id.ID, chi.URLParam(r, "roomName")); err != nil {
		h.roomError(w, err, "leave failed")
		return
	}

	h.addFlash(r, id.ID, flash.LevelSuccess, "You have left the chat.")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) renderEditPage(w http.ResponseWriter, r *http.Request, room *Room, groupchatName string, errs validate.FieldErrors, status int) {
	members, err := h.svc.store.Members(r.Context(), room.ID)
	if err != nil {
		h.logger.Error().Err(err).Msg("member list failed")
		h.renderer.ServerError(w)
		return
	}

	// The admin removes others, not themselves.
	removable := members[:0]
	for _, m := range members {
		if m.ID != room.AdminID {
			removable = append(removable, m)
		}
	}

	h.renderer.HTML(w, status, "room_edit.html", editPage{
		Room:          room,
		GroupchatName: groupchatName,
		Members:       removable,
		Errors:        errs,
	})
}

func (h *Handler) roomError(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, ErrNotFound) {
		h.renderer.NotFound(w)
		return
	}
	h.logger.Error().Err(err).Msg(msg)
	h.renderer.ServerError(w)
}

func (h *Handler) addFlash(r *http.Request, accountID, level, text string) {
	if err := h.flashes.Add(r.Context(), accountID, flash.Notice{Level: level, Text: text}); err != nil {
		h.logger.Warn().Err(err).Msg("flash add failed")
	}
}
