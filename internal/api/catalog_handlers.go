package api

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/example/ec-storefront/internal/domain/product"
)

// GetCategories lists categories by name, nested with ?tree=true.
func (h *Handlers) GetCategories(w http.ResponseWriter, r *http.Request) {
	if tree, _ := strconv.ParseBool(r.URL.Query().Get("tree")); tree {
		nodes, err := h.svc.Categories.Tree(r.Context())
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, "Categories fetched", h.present.tree(nodes))
		return
	}
	cats, err := h.svc.Categories.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Categories fetched", h.present.categories(cats))
}

// GetProducts is the public catalog with filters, sort and pagination.
func (h *Handlers) GetProducts(w http.ResponseWriter, r *http.Request) {
	p, err := listParams(r.URL.Query(), "search")
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.svc.Products.List(r.Context(), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Products fetched", h.present.page(page))
}

// SearchProducts ranks matches for ?q=.
func (h *Handlers) SearchProducts(w http.ResponseWriter, r *http.Request) {
	p, err := listParams(r.URL.Query(), "q")
	if err != nil {
		respondError(w, r, err)
		return
	}
	page, err := h.svc.Products.Search(r.Context(), p)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Search results", h.present.page(page))
}

func (h *Handlers) GetProductBySlug(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.Products.GetBySlug(r.Context(), r.PathValue("slug"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Product fetched", h.present.product(p))
}

func (h *Handlers) GetProductsByIDs(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []string `json:"ids"`
	}
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	products, err := h.svc.Products.ByIDs(r.Context(), req.IDs)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, "Products fetched", h.present.products(products))
}

// listParams reads the catalog query string. searchKey names the free text
// parameter, which differs between listing and search.
func listParams(q url.Values, searchKey string) (product.ListParams, error) {
	p := product.ListParams{
		Categories: listValue(q, "category"),
		Sizes:      listValue(q, "size"),
		Colors:     listValue(q, "color"),
		Tags:       listValue(q, "tags"),
		Search:     q.Get(searchKey),
		Sort:       product.ParseSort(q.Get("sort")),
	}
	p.DiscountOnly, _ = strconv.ParseBool(q.Get("discountOnly"))

	var err error
	if p.PriceMin, err = priceValue(q, "priceMin"); err != nil {
		return p, err
	}
	if p.PriceMax, err = priceValue(q, "priceMax"); err != nil {
		return p, err
	}
	if p.Page, err = intValue(q, "page"); err != nil {
		return p, err
	}
	if p.Limit, err = intValue(q, "limit"); err != nil {
		return p, err
	}
	return p, nil
}

// listValue accepts repeated keys and comma separated values alike.
func listValue(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for part := range strings.SplitSeq(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func priceValue(q url.Values, key string) (decimal.NullDecimal, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.NullDecimal{}, product.ErrInvalidPrice.Withf("Invalid %s", key)
	}
	return decimal.NewNullDecimal(d), nil
}

func intValue(q url.Values, key string) (int, error) {
	v := strings.TrimSpace(q.Get(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return 0, product.ErrInvalidPage
	}
	return n, nil
}
