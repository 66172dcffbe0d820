package registryhttp_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"handoff/internal/adapters/registryhttp"
	"handoff/internal/core"
	"handoff/internal/receiver"
	"handoff/pkg/domain"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	carol = common.HexToAddress("0x00000000000000000000000000000000000ca401")
	admin = common.HexToAddress("0x00000000000000000000000000000000000000ad")
)

type resourceResponse struct {
	Resource domain.Resource `json:"resource"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func setupHandler(t *testing.T, opts ...core.Option) (*core.Service, *registryhttp.Handler) {
	t.Helper()
	log := core.NewEventLog(0)
	opts = append([]core.Option{core.WithCreationFee(domain.NewAmount(5)), core.WithAdmin(admin), core.WithEventSubscriber(log)}, opts...)
	svc := core.NewInMemoryService(nil, opts...)
	handler := registryhttp.NewHandler(svc)
	handler.Events = log
	return svc, handler
}

func do(t *testing.T, h http.Handler, method, path string, caller *common.Address, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if caller != nil {
		req.Header.Set(registryhttp.PrincipalHeader, caller.Hex())
	}
	resp := httptest.NewRecorder()
	h.ServeHTTP(resp, req)
	return resp
}

func decodeResource(t *testing.T, resp *httptest.ResponseRecorder) domain.Resource {
	t.Helper()
	var out resourceResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", resp.Body.String(), err)
	}
	return out.Resource
}

func create(t *testing.T, h http.Handler, caller common.Address, salt string) domain.Resource {
	t.Helper()
	resp := do(t, h, http.MethodPost, "/api/v1/resources", &caller, map[string]any{
		"salt":     salt,
		"recipe":   "0x6001600055",
		"fee":      "5",
		"metadata": map[string]any{"name": "vault", "license": "MIT"},
	})
	if resp.Code != http.StatusCreated {
		t.Fatalf("create: unexpected status %d: %s", resp.Code, resp.Body.String())
	}
	return decodeResource(t, resp)
}

func TestHandlerCreateAndRead(t *testing.T) {
	svc, h := setupHandler(t)
	created := create(t, h, alice, "0x01")
	if created.ID != 1 || created.Owner != alice {
		t.Fatalf("unexpected created resource %+v", created)
	}

	resp := do(t, h, http.MethodGet, "/api/v1/resources/1", nil, nil)
	if resp.Code != http.StatusOK || decodeResource(t, resp).Instance != created.Instance {
		t.Fatalf("get resource: %d %s", resp.Code, resp.Body.String())
	}

	resp = do(t, h, http.MethodGet, "/api/v1/resources/1/metadata", nil, nil)
	var meta struct {
		Metadata domain.Metadata `json:"metadata"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &meta); err != nil || meta.Metadata.Name != "vault" || meta.Metadata.Subject != created.Instance {
		t.Fatalf("unexpected metadata response %s", resp.Body.String())
	}

	resp = do(t, h, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/resources", nil, nil)
	var holdings struct {
		Count     int               `json:"count"`
		Resources []domain.Resource `json:"resources"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &holdings); err != nil || holdings.Count != 1 || len(holdings.Resources) != 1 {
		t.Fatalf("unexpected holdings %s", resp.Body.String())
	}

	resp = do(t, h, http.MethodGet, "/api/v1/predict?salt=0x01&recipe=0x6001600055", nil, nil)
	var predicted struct {
		Instance common.Address `json:"instance"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &predicted); err != nil || predicted.Instance != created.Instance {
		t.Fatalf("unexpected prediction %s", resp.Body.String())
	}

	resp = do(t, h, http.MethodGet, "/api/v1/resources/1/events", nil, nil)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), string(domain.EventResourceCreated)) {
		t.Fatalf("unexpected events response %s", resp.Body.String())
	}

	if svc.Balance(context.Background()).Uint64() != 5 {
		t.Fatalf("expected fee collected")
	}
}

func TestHandlerLockApproveTransfer(t *testing.T) {
	_, h := setupHandler(t)
	create(t, h, alice, "0x01")

	resp := do(t, h, http.MethodPost, "/api/v1/resources/1/approve", &alice, map[string]any{"delegate": bob.Hex()})
	if resp.Code != http.StatusOK {
		t.Fatalf("approve: %d %s", resp.Code, resp.Body.String())
	}
	if got := decodeResource(t, resp); !got.Locked || got.Approved != bob {
		t.Fatalf("unexpected approved resource %+v", got)
	}

	resp = do(t, h, http.MethodPost, "/api/v1/resources/1/transfer", &bob, map[string]any{
		"from": alice.Hex(), "to": carol.Hex(), "data": "0xbeef",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("transfer: %d %s", resp.Code, resp.Body.String())
	}
	if got := decodeResource(t, resp); got.Owner != carol || !got.Locked {
		t.Fatalf("unexpected transferred resource %+v", got)
	}

	resp = do(t, h, http.MethodPost, "/api/v1/resources/1/unlock", &carol, nil)
	if resp.Code != http.StatusOK || decodeResource(t, resp).Locked {
		t.Fatalf("unlock: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(t, h, http.MethodPost, "/api/v1/resources/1/lock", &carol, nil)
	if resp.Code != http.StatusOK || !decodeResource(t, resp).Locked {
		t.Fatalf("lock: %d %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerOperators(t *testing.T) {
	_, h := setupHandler(t)
	create(t, h, alice, "0x01")
	resp := do(t, h, http.MethodPost, "/api/v1/operators", &alice, map[string]any{"delegate": bob.Hex(), "granted": true})
	if resp.Code != http.StatusOK {
		t.Fatalf("approve all: %d %s", resp.Code, resp.Body.String())
	}
	resp = do(t, h, http.MethodGet, "/api/v1/owners/"+alice.Hex()+"/operators/"+bob.Hex(), nil, nil)
	var out struct {
		Approved bool `json:"approved"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &out); err != nil || !out.Approved {
		t.Fatalf("unexpected operator response %s", resp.Body.String())
	}
	resp = do(t, h, http.MethodPost, "/api/v1/resources/1/transfer", &bob, map[string]any{
		"from": alice.Hex(), "to": carol.Hex(), "unchecked": true,
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("operator transfer: %d %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerTreasury(t *testing.T) {
	_, h := setupHandler(t)
	create(t, h, alice, "0x01")
	resp := do(t, h, http.MethodGet, "/api/v1/treasury", nil, nil)
	var summary struct {
		Balance     string `json:"balance"`
		CreationFee string `json:"creation_fee"`
		Issued      uint64 `json:"issued"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &summary); err != nil || summary.Balance != "5" || summary.CreationFee != "5" || summary.Issued != 1 {
		t.Fatalf("unexpected treasury %s", resp.Body.String())
	}
	resp = do(t, h, http.MethodPost, "/api/v1/treasury/withdraw", &alice, map[string]any{"to": alice.Hex(), "amount": "1"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Code)
	}
	resp = do(t, h, http.MethodPost, "/api/v1/treasury/withdraw", &admin, map[string]any{"to": bob.Hex(), "amount": "4"})
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"balance":"1"`) {
		t.Fatalf("withdraw: %d %s", resp.Code, resp.Body.String())
	}
}

func TestHandlerErrorStatuses(t *testing.T) {
	dir := receiver.NewDirectory()
	dir.Register(carol, receiver.Rejecting)
	_, h := setupHandler(t, core.WithReceivers(dir))
	create(t, h, alice, "0x01")

	cases := []struct {
		name   string
		method string
		path   string
		caller *common.Address
		body   any
		status int
	}{
		{"missing caller", http.MethodPost, "/api/v1/resources/1/lock", nil, nil, http.StatusUnauthorized},
		{"bad id", http.MethodGet, "/api/v1/resources/zero", nil, nil, http.StatusBadRequest},
		{"unknown id", http.MethodGet, "/api/v1/resources/9", nil, nil, http.StatusNotFound},
		{"not owner lock", http.MethodPost, "/api/v1/resources/1/lock", &bob, nil, http.StatusForbidden},
		{"unlock unlocked", http.MethodPost, "/api/v1/resources/1/unlock", &alice, nil, http.StatusConflict},
		{"transfer unlocked", http.MethodPost, "/api/v1/resources/1/transfer", &alice, map[string]any{"from": alice.Hex(), "to": bob.Hex()}, http.StatusConflict},
		{"wrong fee", http.MethodPost, "/api/v1/resources", &alice, map[string]any{"salt": "0x02", "recipe": "0x01", "fee": "1"}, http.StatusBadRequest},
		{"collision", http.MethodPost, "/api/v1/resources", &bob, map[string]any{"salt": "0x01", "recipe": "0x6001600055", "fee": "5"}, http.StatusConflict},
		{"bad payload", http.MethodPost, "/api/v1/operators", &alice, "nope", http.StatusBadRequest},
		{"wrong method", http.MethodDelete, "/api/v1/resources/1", nil, nil, http.StatusMethodNotAllowed},
		{"unknown route", http.MethodGet, "/api/v1/elsewhere", nil, nil, http.StatusNotFound},
		{"bad prediction", http.MethodGet, "/api/v1/predict?salt=zz", nil, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := do(t, h, tc.method, tc.path, tc.caller, tc.body)
			if resp.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, resp.Code, resp.Body.String())
			}
		})
	}

	do(t, h, http.MethodPost, "/api/v1/resources/1/lock", &alice, nil)
	resp := do(t, h, http.MethodPost, "/api/v1/resources/1/transfer", &alice, map[string]any{"from": alice.Hex(), "to": carol.Hex()})
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for rejected receipt, got %d", resp.Code)
	}
	var body errorResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil || !strings.Contains(body.Error, domain.ErrReceiverRejected.Error()) {
		t.Fatalf("unexpected error body %s", resp.Body.String())
	}
}

func TestHandlerWithoutRegistry(t *testing.T) {
	resp := do(t, &registryhttp.Handler{}, http.MethodGet, "/api/v1/treasury", nil, nil)
	if resp.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", resp.Code)
	}
}
