// Package registryhttp exposes the resource registry over a JSON HTTP API.
package registryhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"handoff/pkg/domain"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// PrincipalHeader carries the caller's identity on every request.
const PrincipalHeader = "X-Handoff-Principal"

const (
	resourcesPath = "/api/v1/resources"
	ownersPath    = "/api/v1/owners/"
	operatorsPath = "/api/v1/operators"
	treasuryPath  = "/api/v1/treasury"
	predictPath   = "/api/v1/predict"
)

// Registry is the service surface the handler drives.
type Registry interface {
	CreateResource(ctx context.Context, caller domain.Principal, salt domain.Salt, recipe []byte, record domain.Metadata, fee *domain.Amount) (domain.Resource, error)
	Resource(ctx context.Context, id domain.ResourceID) (domain.Resource, error)
	ResourcesOf(ctx context.Context, owner domain.Principal) []domain.Resource
	CountOwned(ctx context.Context, owner domain.Principal) int
	Metadata(ctx context.Context, id domain.ResourceID) (domain.Metadata, error)
	Lock(ctx context.Context, caller domain.Principal, id domain.ResourceID) error
	Unlock(ctx context.Context, caller domain.Principal, id domain.ResourceID) error
	ApproveDelegate(ctx context.Context, caller domain.Principal, id domain.ResourceID, delegate domain.Principal) error
	ApproveAllDelegate(ctx context.Context, caller, delegate domain.Principal, granted bool) error
	IsApprovedForAll(ctx context.Context, owner, delegate domain.Principal) bool
	Transfer(ctx context.Context, caller, from, to domain.Principal, id domain.ResourceID, data []byte) error
	TransferUnchecked(ctx context.Context, caller, from, to domain.Principal, id domain.ResourceID) error
	PredictInstance(salt domain.Salt, recipe []byte) domain.Principal
	CreationFee() *domain.Amount
	Balance(ctx context.Context) *domain.Amount
	TotalIssued(ctx context.Context) uint64
	Withdraw(ctx context.Context, caller, to domain.Principal, amount *domain.Amount) error
}

// EventSource lists committed events for a resource.
type EventSource interface {
	Events(id domain.ResourceID) []domain.Event
}

// Handler routes registry requests.
type Handler struct {
	Registry Registry
	Events   EventSource
}

// NewHandler constructs a registry HTTP handler.
func NewHandler(r Registry) *Handler {
	return &Handler{Registry: r}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Registry == nil {
		writeError(w, http.StatusInternalServerError, "registry not configured")
		return
	}

	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == resourcesPath:
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleCreate(w, r)
	case strings.HasPrefix(path, resourcesPath+"/"):
		h.handleResource(w, r, strings.TrimPrefix(path, resourcesPath+"/"))
	case strings.HasPrefix(path, ownersPath):
		h.handleOwner(w, r, strings.TrimPrefix(path, ownersPath))
	case path == operatorsPath:
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleApproveAll(w, r)
	case path == treasuryPath || path == treasuryPath+"/withdraw":
		h.handleTreasury(w, r, path)
	case path == predictPath:
		h.handlePredict(w, r)
	default:
		http.NotFound(w, r)
	}
}

type metadataPayload struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
	ExternalURL string `json:"external_url"`
	Category    string `json:"category"`
	Creator     string `json:"creator"`
	Network     string `json:"network"`
	SourceCode  string `json:"source_code"`
	License     string `json:"license"`
	Attributes  string `json:"attributes"`
	Functions   string `json:"functions"`
	Events      string `json:"events"`
	Mappings    string `json:"mappings"`
}

func (m metadataPayload) record() domain.Metadata {
	return domain.Metadata{
		Name:        m.Name,
		Description: m.Description,
		Image:       m.Image,
		ExternalURL: m.ExternalURL,
		Category:    m.Category,
		Creator:     m.Creator,
		Network:     m.Network,
		SourceCode:  m.SourceCode,
		License:     m.License,
		Attributes:  m.Attributes,
		Functions:   m.Functions,
		Events:      m.Events,
		Mappings:    m.Mappings,
	}
}

type createRequest struct {
	Salt     domain.Salt     `json:"salt"`
	Recipe   hexutil.Bytes   `json:"recipe"`
	Fee      string          `json:"fee"`
	Metadata metadataPayload `json:"metadata"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req createRequest
	if !decode(w, r, &req, "invalid create request payload") {
		return
	}
	fee, err := domain.ParseAmount(req.Fee)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	created, err := h.Registry.CreateResource(r.Context(), caller, req.Salt, req.Recipe, req.Metadata.record(), fee)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"resource": created})
}

func (h *Handler) handleResource(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id, err := domain.ParseResourceID(segments[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(segments) == 1 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		res, err := h.Registry.Resource(r.Context(), id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"resource": res})
		return
	}
	if len(segments) != 2 {
		writeError(w, http.StatusNotFound, "resource endpoint not found")
		return
	}

	switch action := segments[1]; action {
	case "metadata":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		meta, err := h.Registry.Metadata(r.Context(), id)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"metadata": meta})
	case "events":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		if h.Events == nil {
			writeError(w, http.StatusNotFound, "event log not configured")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"events": h.Events.Events(id)})
	case "lock", "unlock", "approve", "transfer":
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		caller, ok := requireCaller(w, r)
		if !ok {
			return
		}
		h.handleMutation(w, r, action, caller, id)
	default:
		writeError(w, http.StatusNotFound, "resource endpoint not found")
	}
}

type approveRequest struct {
	Delegate domain.Principal `json:"delegate"`
}

type transferRequest struct {
	From      domain.Principal `json:"from"`
	To        domain.Principal `json:"to"`
	Data      hexutil.Bytes    `json:"data"`
	Unchecked bool             `json:"unchecked"`
}

func (h *Handler) handleMutation(w http.ResponseWriter, r *http.Request, action string, caller domain.Principal, id domain.ResourceID) {
	ctx := r.Context()
	var err error
	switch action {
	case "lock":
		err = h.Registry.Lock(ctx, caller, id)
	case "unlock":
		err = h.Registry.Unlock(ctx, caller, id)
	case "approve":
		var req approveRequest
		if !decode(w, r, &req, "invalid approve request payload") {
			return
		}
		err = h.Registry.ApproveDelegate(ctx, caller, id, req.Delegate)
	case "transfer":
		var req transferRequest
		if !decode(w, r, &req, "invalid transfer request payload") {
			return
		}
		if req.Unchecked {
			err = h.Registry.TransferUnchecked(ctx, caller, req.From, req.To, id)
		} else {
			err = h.Registry.Transfer(ctx, caller, req.From, req.To, id, req.Data)
		}
	}
	if err != nil {
		writeFailure(w, err)
		return
	}
	res, err := h.Registry.Resource(ctx, id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"resource": res})
}

func (h *Handler) handleOwner(w http.ResponseWriter, r *http.Request, remainder string) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	segments := strings.Split(remainder, "/")
	owner, err := domain.ParsePrincipal(segments[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	switch {
	case len(segments) == 2 && segments[1] == "resources":
		resources := h.Registry.ResourcesOf(r.Context(), owner)
		writeJSON(w, http.StatusOK, map[string]any{
			"owner":     owner,
			"count":     h.Registry.CountOwned(r.Context(), owner),
			"resources": resources,
		})
	case len(segments) == 3 && segments[1] == "operators":
		delegate, err := domain.ParsePrincipal(segments[2])
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"owner":    owner,
			"delegate": delegate,
			"approved": h.Registry.IsApprovedForAll(r.Context(), owner, delegate),
		})
	default:
		writeError(w, http.StatusNotFound, "owner endpoint not found")
	}
}

type approveAllRequest struct {
	Delegate domain.Principal `json:"delegate"`
	Granted  bool             `json:"granted"`
}

func (h *Handler) handleApproveAll(w http.ResponseWriter, r *http.Request) {
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req approveAllRequest
	if !decode(w, r, &req, "invalid operator request payload") {
		return
	}
	if err := h.Registry.ApproveAllDelegate(r.Context(), caller, req.Delegate, req.Granted); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"owner":    caller,
		"delegate": req.Delegate,
		"approved": req.Granted,
	})
}

type withdrawRequest struct {
	To     domain.Principal `json:"to"`
	Amount string           `json:"amount"`
}

func (h *Handler) handleTreasury(w http.ResponseWriter, r *http.Request, path string) {
	if path == treasuryPath {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"balance":      h.Registry.Balance(r.Context()).Dec(),
			"creation_fee": h.Registry.CreationFee().Dec(),
			"issued":       h.Registry.TotalIssued(r.Context()),
		})
		return
	}
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, ok := requireCaller(w, r)
	if !ok {
		return
	}
	var req withdrawRequest
	if !decode(w, r, &req, "invalid withdraw request payload") {
		return
	}
	amount, err := domain.ParseAmount(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.Registry.Withdraw(r.Context(), caller, req.To, amount); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"balance": h.Registry.Balance(r.Context()).Dec()})
}

func (h *Handler) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	q := r.URL.Query()
	salt, err := domain.ParseSalt(q.Get("salt"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recipe, err := hexutil.Decode(q.Get("recipe"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "recipe: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"instance": h.Registry.PredictInstance(salt, recipe)})
}

func requireCaller(w http.ResponseWriter, r *http.Request) (domain.Principal, bool) {
	raw := strings.TrimSpace(r.Header.Get(PrincipalHeader))
	if raw == "" {
		writeError(w, http.StatusUnauthorized, "missing "+PrincipalHeader+" header")
		return domain.NullPrincipal, false
	}
	p, err := domain.ParsePrincipal(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return domain.NullPrincipal, false
	}
	return p, true
}

func decode(w http.ResponseWriter, r *http.Request, target any, message string) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeError(w, http.StatusBadRequest, message)
		return false
	}
	return true
}

// statusFor maps the registry failure taxonomy onto HTTP statuses.
func statusFor(err error) int {
	var violation domain.RuleViolationError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrTransferToNull), errors.Is(err, domain.ErrIncorrectFee):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrReceiverRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrNotOwner),
		errors.Is(err, domain.ErrNotLockedForTransfer),
		errors.Is(err, domain.ErrNotLocked),
		errors.Is(err, domain.ErrAlreadyExists),
		errors.Is(err, domain.ErrAddressCollision),
		errors.Is(err, domain.ErrMetadataConflict),
		errors.Is(err, domain.ErrInsufficientBalance),
		errors.Is(err, domain.ErrReentrantCall),
		errors.As(err, &violation):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDeploymentFailed):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
