package api

import (
	"net/http"

	"github.com/example/ec-storefront/internal/domain/review"
	"github.com/example/ec-storefront/internal/domain/ticket"
	"github.com/example/ec-storefront/internal/domain/user"
)

// Reviews

// CreateReview posts a review for a product the caller has bought.
func (h *Handlers) CreateReview(w http.ResponseWriter, r *http.Request) {
	var req review.Input
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	id := userID(r)
	name, err := h.svc.Users.Name(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rv, err := h.svc.Reviews.Create(r.Context(), review.Author{ID: id, Name: name}, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Review submitted", rv)
}

func (h *Handlers) GetProductReviews(w http.ResponseWriter, r *http.Request) {
	reviews, err := h.svc.Reviews.ForProduct(r.Context(), r.PathValue("productId"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Reviews fetched", reviews)
}

// Tickets

var ticketForm = formSchema{}

func actor(r *http.Request) ticket.Actor {
	return ticket.Actor{UserID: userID(r), IsAdmin: isAdmin(r)}
}

// CreateTicket opens a ticket; attachments arrive as multipart "files".
func (h *Handlers) CreateTicket(w http.ResponseWriter, r *http.Request) {
	var req ticket.Input
	files, err := decodeBody(w, r, &req, ticketForm, "files", ticket.MaxUserFiles, h.maxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.svc.Tickets.Create(r.Context(), userID(r), req, files)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Ticket created", h.present.ticket(t))
}

func (h *Handlers) GetMyTickets(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.svc.Tickets.ListMine(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Tickets fetched", h.present.tickets(tickets))
}

// GetTicket serves the owner and admins.
func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	t, err := h.svc.Tickets.Get(r.Context(), actor(r), r.PathValue("id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Ticket fetched", h.present.ticket(t))
}

// ReplyToTicket appends a message. Admins may attach more files than
// customers.
func (h *Handlers) ReplyToTicket(w http.ResponseWriter, r *http.Request) {
	a := actor(r)
	maxFiles := ticket.MaxUserFiles
	if a.IsAdmin {
		maxFiles = ticket.MaxAdminFiles
	}
	var req struct {
		Message string `json:"message"`
	}
	files, err := decodeBody(w, r, &req, ticketForm, "files", maxFiles, h.maxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	t, err := h.svc.Tickets.Reply(r.Context(), a, r.PathValue("id"), req.Message, files)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Reply added", h.present.ticket(t))
}

// Addresses

// addressRequest accepts the address either at the top level or wrapped in
// an "address" object.
type addressRequest struct {
	user.AddressPatch
	Address *user.AddressPatch `json:"address"`
}

func (a addressRequest) patch() user.AddressPatch {
	if a.Address != nil {
		return *a.Address
	}
	return a.AddressPatch
}

func (h *Handlers) GetAddresses(w http.ResponseWriter, r *http.Request) {
	addrs, err := h.svc.Users.Addresses(r.Context(), userID(r))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Addresses fetched", addrs)
}

func (h *Handlers) AddAddress(w http.ResponseWriter, r *http.Request) {
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	addrs, err := h.svc.Users.AddAddress(r.Context(), userID(r), req.patch())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Address added", addrs)
}

func (h *Handlers) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	index, err := pathInt(r, "index")
	if err != nil {
		respondError(w, r, user.ErrInvalidAddressIndex)
		return
	}
	var req addressRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	addrs, err := h.svc.Users.UpdateAddress(r.Context(), userID(r), index, req.patch())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Address updated", addrs)
}

func (h *Handlers) DeleteAddress(w http.ResponseWriter, r *http.Request) {
	index, err := pathInt(r, "index")
	if err != nil {
		respondError(w, r, user.ErrInvalidAddressIndex)
		return
	}
	addrs, err := h.svc.Users.DeleteAddress(r.Context(), userID(r), index)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Address deleted", addrs)
}

// Newsletter

func (h *Handlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	sub, err := h.svc.Newsletter.Subscribe(r.Context(), req.Email)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, "Subscribed successfully", sub)
}
