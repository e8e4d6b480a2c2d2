package api

import (
	"github.com/example/ec-storefront/internal/domain/cart"
	"github.com/example/ec-storefront/internal/domain/category"
	"github.com/example/ec-storefront/internal/domain/order"
	"github.com/example/ec-storefront/internal/domain/product"
	"github.com/example/ec-storefront/internal/domain/ticket"
	"github.com/example/ec-storefront/internal/domain/wishlist"
	"github.com/example/ec-storefront/internal/upload"
)

// presenter rewrites stored file paths into absolute URLs on the way out.
// Domain values are copied, never modified in place.
type presenter struct {
	files *upload.Storage
}

func (p presenter) product(v *product.Product) *product.Product {
	if v == nil {
		return nil
	}
	out := *v
	out.Images = p.files.URLs(v.Images)
	return &out
}

func (p presenter) products(in []product.Product) []product.Product {
	out := make([]product.Product, len(in))
	for i := range in {
		out[i] = *p.product(&in[i])
	}
	return out
}

func (p presenter) page(v *product.Page) *product.Page {
	return &product.Page{Products: p.products(v.Products), Meta: v.Meta}
}

func (p presenter) summary(v *product.Summary) *product.Summary {
	if v == nil {
		return nil
	}
	out := *v
	out.Images = p.files.URLs(v.Images)
	return &out
}

func (p presenter) category(v *category.Category) *category.Category {
	if v == nil {
		return nil
	}
	out := *v
	out.Image = p.files.URL(v.Image)
	return &out
}

func (p presenter) categories(in []category.Category) []category.Category {
	out := make([]category.Category, len(in))
	for i := range in {
		out[i] = *p.category(&in[i])
	}
	return out
}

func (p presenter) tree(in []*category.Node) []*category.Node {
	out := make([]*category.Node, len(in))
	for i, n := range in {
		out[i] = &category.Node{Category: *p.category(&n.Category), Children: p.tree(n.Children)}
	}
	return out
}

func (p presenter) cart(v *cart.View) *cart.View {
	out := *v
	out.Items = make([]cart.Line, len(v.Items))
	for i, l := range v.Items {
		l.Product = p.summary(l.Product)
		out.Items[i] = l
	}
	return &out
}

func (p presenter) wishlist(in []wishlist.Line) []wishlist.Line {
	out := make([]wishlist.Line, len(in))
	for i, l := range in {
		l.Product = p.summary(l.Product)
		out[i] = l
	}
	return out
}

func (p presenter) ticket(v *ticket.Ticket) *ticket.Ticket {
	if v == nil {
		return nil
	}
	out := *v
	out.Messages = make([]ticket.Message, len(v.Messages))
	for i, m := range v.Messages {
		atts := make([]upload.Saved, len(m.Attachments))
		for j, a := range m.Attachments {
			atts[j] = upload.Saved{Path: p.files.URL(a.Path), Kind: a.Kind}
		}
		m.Attachments = atts
		out.Messages[i] = m
	}
	return &out
}

func (p presenter) tickets(in []ticket.Ticket) []ticket.Ticket {
	out := make([]ticket.Ticket, len(in))
	for i := range in {
		out[i] = *p.ticket(&in[i])
	}
	return out
}

func (p presenter) order(v *order.Order) *order.Order {
	if v == nil {
		return nil
	}
	out := *v
	out.Items = make([]order.Item, len(v.Items))
	for i, it := range v.Items {
		it.Image = p.files.URL(it.Image)
		out.Items[i] = it
	}
	return &out
}

func (p presenter) orders(in []order.Order) []order.Order {
	out := make([]order.Order, len(in))
	for i := range in {
		out[i] = *p.order(&in[i])
	}
	return out
}
