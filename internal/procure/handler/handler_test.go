package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/bitfantasy/nimo-procure/internal/config"
	"github.com/bitfantasy/nimo-procure/internal/procure/repository"
	"github.com/bitfantasy/nimo-procure/internal/procure/service"
	"github.com/bitfantasy/nimo-procure/internal/procure/sse"
	"github.com/bitfantasy/nimo-procure/internal/procure/testutil"
)

func setupProcureTest(t *testing.T) *testutil.TestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)

	repos := repository.NewRepositories(db)
	hub := sse.NewHub(nil)
	cfg := config.ProcureConfig{LeaseTTL: 0, Currency: "INR", POCodePrefix: "PO"}

	handlers := NewHandlers(
		service.NewRequisitionService(repos, nil),
		service.NewCatalogService(repos, nil),
		service.NewComparisonService(repos, service.NewMemoryLeaseStore(), hub, cfg, nil),
		hub,
	)

	router := testutil.SetupRouter()
	handlers.RegisterRoutes(testutil.AuthGroup(router, "/api/v1/procure"))

	testutil.SeedCatalogItem(t, db, "cement", "Cement 50kg", "bag",
		testutil.Price("X", "Xavier Traders", 5.00, 0.50),
		testutil.Price("Y", "Yash Supplies", 4.50, 0.45),
	)

	return &testutil.TestEnv{DB: db, Router: router, T: t}
}

// createComparing creates a one-line requisition for 10 bags of cement and starts comparison.
func createComparing(t *testing.T, env *testutil.TestEnv) (reqID, lineID string) {
	t.Helper()
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "POST", "/api/v1/procure/requisitions", map[string]interface{}{
		"title": "Block A slab",
		"lines": []map[string]interface{}{
			{"catalog_item_id": "cement", "quantity": 10},
		},
	}, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	reqID = data["id"].(string)
	lineID = data["lines"].([]interface{})[0].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/procure/requisitions/"+reqID+"/start-comparison", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("start-comparison: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	return reqID, lineID
}

func TestComparisonOverHTTP(t *testing.T) {
	env := setupProcureTest(t)
	token := testutil.DefaultTestToken()
	reqID, lineID := createComparing(t, env)
	base := "/api/v1/procure/requisitions/" + reqID

	w := testutil.DoRequest(env.Router, "PUT", base+"/lines/"+lineID+"/selection", map[string]interface{}{
		"vendor_id": "X",
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("selection: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", base+"/submit", nil, token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("submit without reason: expected 422, got %d: %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	if resp["code"].(float64) != 42200 {
		t.Fatalf("expected code 42200, got %v", resp["code"])
	}
	errs := resp["data"].(map[string]interface{})["errors"].([]interface{})
	if len(errs) != 1 || errs[0].(map[string]interface{})["code"] != "missing_override_reason" {
		t.Fatalf("unexpected validation errors: %v", errs)
	}

	w = testutil.DoRequest(env.Router, "PUT", base+"/lines/"+lineID+"/override-reason", map[string]interface{}{
		"override_reason": "Y cannot deliver this week",
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("override-reason: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "PUT", base+"/fleet-costs/X", map[string]interface{}{
		"cost": 10, "gst": 1,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("fleet-costs: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	result := testutil.ParseResponse(w)["data"].(map[string]interface{})["result"].(map[string]interface{})
	if result["overall_total"].(float64) != 66 {
		t.Fatalf("expected overall_total 66, got %v", result["overall_total"])
	}

	w = testutil.DoRequest(env.Router, "GET", base+"/validation", nil, token)
	if w.Code != http.StatusOK || testutil.ParseResponse(w)["data"].(map[string]interface{})["submittable"] != true {
		t.Fatalf("validation: expected submittable, got %d: %s", w.Code, w.Body.String())
	}

	for _, step := range []string{"/submit", "/approve"} {
		w = testutil.DoRequest(env.Router, "POST", base+step, nil, token)
		if w.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d: %s", step, w.Code, w.Body.String())
		}
	}

	w = testutil.DoRequest(env.Router, "POST", base+"/purchase-orders", nil, token)
	if w.Code != http.StatusCreated {
		t.Fatalf("purchase-orders: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	pos := testutil.ParseResponse(w)["data"].([]interface{})
	if len(pos) != 1 {
		t.Fatalf("expected 1 purchase order, got %d", len(pos))
	}
	po := pos[0].(map[string]interface{})
	if po["total_amount"].(float64) != 66 || po["status"] != "open" {
		t.Fatalf("unexpected purchase order: %v", po)
	}
	poID := po["id"].(string)
	itemID := po["items"].([]interface{})[0].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/procure/purchase-orders/"+poID+"/items/"+itemID+"/receive", map[string]interface{}{
		"quantity": 10,
	}, token)
	if w.Code != http.StatusOK {
		t.Fatalf("receive: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if testutil.ParseResponse(w)["data"].(map[string]interface{})["status"] != "closed" {
		t.Fatalf("expected closed PO, got %s", w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", base+"/activities", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("activities: expected 200, got %d", w.Code)
	}
}

func TestBuyerCannotOverrideOverHTTP(t *testing.T) {
	env := setupProcureTest(t)
	reqID, lineID := createComparing(t, env)
	buyer := testutil.BuyerToken("buyer-1")
	base := "/api/v1/procure/requisitions/" + reqID

	w := testutil.DoRequest(env.Router, "PUT", base+"/lines/"+lineID+"/selection", map[string]interface{}{
		"vendor_id": "X", "override_reason": "closer yard",
	}, buyer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "POST", base+"/selections/auto-lowest", nil, buyer)
	if w.Code != http.StatusOK {
		t.Fatalf("auto-lowest: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "POST", base+"/submit", nil, buyer)
	if w.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "POST", base+"/approve", nil, buyer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("approve by buyer: expected 403, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "POST", base+"/reject", nil, testutil.DefaultTestToken())
	if w.Code != http.StatusBadRequest {
		t.Fatalf("reject without reason: expected 400, got %d", w.Code)
	}
}

func TestStaleRevisionOverHTTP(t *testing.T) {
	env := setupProcureTest(t)
	token := testutil.DefaultTestToken()
	reqID, lineID := createComparing(t, env)
	base := "/api/v1/procure/requisitions/" + reqID

	w := testutil.DoRequest(env.Router, "PUT", base+"/lines/"+lineID+"/selection", map[string]interface{}{
		"vendor_id": "Y", "expected_revision": 5,
	}, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "DELETE", base+"/selections?expected_revision=0", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for stale query revision, got %d: %s", w.Code, w.Body.String())
	}
}

func TestErrorsOverHTTP(t *testing.T) {
	env := setupProcureTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/procure/requisitions/missing/comparison", nil, "")
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/procure/requisitions/missing/comparison", nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	reqID, lineID := createComparing(t, env)
	base := "/api/v1/procure/requisitions/" + reqID
	w = testutil.DoRequest(env.Router, "PUT", base+"/fleet-costs/X", map[string]interface{}{"cost": -5}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("negative fleet cost: expected 400, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "PUT", base+"/lines/nope/selection", map[string]interface{}{"vendor_id": "Y"}, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown line: expected 404, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "PUT", base+"/lines/"+lineID+"/selection", map[string]interface{}{"vendor_id": "nobody"}, token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unknown vendor: expected 400, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "POST", base+"/approve", nil, token)
	if w.Code != http.StatusConflict {
		t.Fatalf("approve from compare: expected 409, got %d", w.Code)
	}
}

func TestVendorOptionsAndExport(t *testing.T) {
	env := setupProcureTest(t)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(env.Router, "GET", "/api/v1/procure/catalog/items/cement/vendor-options", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("vendor-options: expected 200, got %d", w.Code)
	}
	options := testutil.ParseResponse(w)["data"].(map[string]interface{})["options"].([]interface{})
	if len(options) != 2 || options[0].(map[string]interface{})["vendor_id"] != "Y" {
		t.Fatalf("expected Y first, got %v", options)
	}

	reqID, _ := createComparing(t, env)
	base := "/api/v1/procure/requisitions/" + reqID
	testutil.DoRequest(env.Router, "POST", base+"/selections/auto-lowest", nil, token)

	w = testutil.DoRequest(env.Router, "GET", base+"/comparison/export", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("export: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "spreadsheetml") {
		t.Fatalf("unexpected content type %s", ct)
	}
	if w.Body.Len() == 0 {
		t.Fatal("expected xlsx body")
	}

	w = testutil.DoRequest(env.Router, "POST", base+"/comparison/archive", nil, token)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("archive without storage: expected 503, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/procure/requisitions?status=compare", nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", w.Code)
	}
	pagination := testutil.ParseResponse(w)["data"].(map[string]interface{})["pagination"].(map[string]interface{})
	if pagination["total"].(float64) != 1 {
		t.Fatalf("expected one comparing requisition, got %v", pagination["total"])
	}

	w = testutil.DoRequest(env.Router, "DELETE", base, nil, token)
	if w.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "GET", base, nil, token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("deleted requisition: expected 404, got %d", w.Code)
	}
}

func TestCatalogOverHTTP(t *testing.T) {
	env := setupProcureTest(t)
	admin := testutil.DefaultTestToken()
	buyer := testutil.BuyerToken("buyer-001")

	priceList := []byte("item_code,vendor_id,vendor_name,unit_price,unit_gst\nCI-cement,Z,Zenith Cement,4.40,0.44\n")

	w := testutil.DoUpload(env.Router, "/api/v1/procure/catalog/price-list/import", "prices.csv", priceList, buyer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("buyer import: expected 403, got %d", w.Code)
	}

	w = testutil.DoUpload(env.Router, "/api/v1/procure/catalog/price-list/import", "prices.csv", priceList, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("import: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["prices_created"].(float64) != 1 {
		t.Fatalf("expected one created price, got %v", data)
	}

	w = testutil.DoUpload(env.Router, "/api/v1/procure/catalog/price-list/import", "prices.csv", []byte("foo,bar\n1,2\n"), admin)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad price list: expected 400, got %d", w.Code)
	}

	// Z 现在最便宜
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/procure/catalog/items/cement/vendor-options", nil, buyer)
	options := testutil.ParseResponse(w)["data"].(map[string]interface{})["options"].([]interface{})
	if len(options) != 3 || options[0].(map[string]interface{})["vendor_id"] != "Z" {
		t.Fatalf("expected Z first after import, got %v", options)
	}

	w = testutil.DoRequest(env.Router, "PUT", "/api/v1/procure/catalog/items/cement/prices/Z/active", map[string]interface{}{"active": false}, admin)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	w = testutil.DoRequest(env.Router, "GET", "/api/v1/procure/catalog/items/cement/vendor-options", nil, buyer)
	options = testutil.ParseResponse(w)["data"].(map[string]interface{})["options"].([]interface{})
	if len(options) != 2 {
		t.Fatalf("expected inactive Z to be hidden, got %v", options)
	}

	w = testutil.DoRequest(env.Router, "POST", "/api/v1/procure/catalog/items", map[string]interface{}{
		"code": "CI-sand", "name": "River Sand", "unit": "cft",
	}, buyer)
	if w.Code != http.StatusForbidden {
		t.Fatalf("buyer create: expected 403, got %d", w.Code)
	}
	w = testutil.DoRequest(env.Router, "POST", "/api/v1/procure/catalog/items", map[string]interface{}{
		"code": "CI-sand", "name": "River Sand", "unit": "cft",
	}, admin)
	if w.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/procure/catalog/items?search=sand", nil, buyer)
	pagination := testutil.ParseResponse(w)["data"].(map[string]interface{})["pagination"].(map[string]interface{})
	if pagination["total"].(float64) != 1 {
		t.Fatalf("expected one sand item, got %v", pagination["total"])
	}

	w = testutil.DoRequest(env.Router, "GET", "/api/v1/procure/catalog/price-list/template", nil, buyer)
	if w.Code != http.StatusOK || !strings.Contains(w.Header().Get("Content-Type"), "spreadsheetml") {
		t.Fatalf("template: expected xlsx, got %d %s", w.Code, w.Header().Get("Content-Type"))
	}
}
