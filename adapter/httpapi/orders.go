package httpapi

import (
	"net/http"
	"time"

	"go.llib.dev/frameless/pkg/httpkit"
	"go.llib.dev/testcase/clock"

	"plangrid/domain/inventory"
	"plangrid/domain/procurement"
)

func (h handlers) orderRoutes(r *httpkit.Router) {
	r.Get("/orders", h.authenticated(h.listOrders))
	r.Post("/orders", h.authenticated(h.createOrder))
	r.Put("/orders/:id", h.authenticated(h.updateOrder))
	r.Delete("/orders/:id", h.authenticated(h.deleteOrder))
	r.Get("/purchase-orders", h.authenticated(h.purchaseOrders))
	r.Post("/purchase-orders", h.authenticated(h.createOrder))
	r.Get("/purchase-requests", h.authenticated(h.purchaseRequests))
	r.Get("/dealers", h.authenticated(h.dealers))
}

func (h handlers) listOrders(w http.ResponseWriter, r *http.Request) error {
	orders, err := h.Orders.List(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, orders)
}

func (h handlers) createOrder(w http.ResponseWriter, r *http.Request) error {
	var d procurement.Draft
	if err := decode(r, &d); err != nil {
		return err
	}
	o, err := h.Orders.Create(r.Context(), Username(r.Context()), d)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, o)
}

type OrderStatusRequest struct {
	Status string `json:"status"`
}

func (h handlers) updateOrder(w http.ResponseWriter, r *http.Request) error {
	var req OrderStatusRequest
	if err := decode(r, &req); err != nil {
		return err
	}
	if err := h.Orders.UpdateStatus(r.Context(), Username(r.Context()), pathParam(r, "id"), req.Status); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Order updated successfully"})
}

func (h handlers) deleteOrder(w http.ResponseWriter, r *http.Request) error {
	if err := h.Orders.Delete(r.Context(), Username(r.Context()), pathParam(r, "id")); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Order deleted successfully"})
}

func (h handlers) purchaseOrders(w http.ResponseWriter, r *http.Request) error {
	pos, err := h.Orders.PurchaseOrders(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, pos)
}

func (h handlers) purchaseRequests(w http.ResponseWriter, r *http.Request) error {
	prs, err := h.Orders.PurchaseRequests(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, prs)
}

func (h handlers) dealers(w http.ResponseWriter, r *http.Request) error {
	return writeJSON(w, http.StatusOK, procurement.Dealers())
}

func (h handlers) inventoryRoutes(r *httpkit.Router) {
	r.Get("/inventory", h.authenticated(h.listInventory))
	r.Post("/inventory", h.authenticated(h.createInventoryItem))
	r.Post("/inventory/initialize", h.authenticated(h.initializeInventory))
	r.Delete("/inventory/delete-all", h.authenticated(h.deleteAllInventory))
	r.Put("/inventory/:code", h.authenticated(h.updateInventoryItem))
	r.Delete("/inventory/:code", h.authenticated(h.deleteInventoryItem))
	r.Get("/warehouses", h.authenticated(h.warehouses))
}

func (h handlers) listInventory(w http.ResponseWriter, r *http.Request) error {
	items, err := h.Inventory.List(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, items)
}

func (h handlers) createInventoryItem(w http.ResponseWriter, r *http.Request) error {
	var item inventory.Item
	if err := decode(r, &item); err != nil {
		return err
	}
	item, err := h.Inventory.Create(r.Context(), Username(r.Context()), item)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusCreated, item)
}

func (h handlers) updateInventoryItem(w http.ResponseWriter, r *http.Request) error {
	var patch inventory.Patch
	if err := decode(r, &patch); err != nil {
		return err
	}
	if _, err := h.Inventory.Update(r.Context(), Username(r.Context()), pathParam(r, "code"), patch); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, Message{Message: "Inventory item updated successfully"})
}

type InventoryDeletion struct {
	Message      string    `json:"message"`
	MaterialCode string    `json:"material_code,omitempty"`
	DeletedCount *int      `json:"deleted_count,omitempty"`
	DeletedBy    string    `json:"deleted_by"`
	DeletedAt    time.Time `json:"deleted_at"`
}

func (h handlers) deleteInventoryItem(w http.ResponseWriter, r *http.Request) error {
	code := pathParam(r, "code")
	if err := h.Inventory.Delete(r.Context(), code); err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, InventoryDeletion{
		Message:      "Inventory item deleted successfully",
		MaterialCode: code,
		DeletedBy:    Username(r.Context()),
		DeletedAt:    clock.Now().UTC(),
	})
}

func (h handlers) deleteAllInventory(w http.ResponseWriter, r *http.Request) error {
	n, err := h.Inventory.DeleteAll(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, InventoryDeletion{
		Message:      "All inventory items deleted successfully",
		DeletedCount: &n,
		DeletedBy:    Username(r.Context()),
		DeletedAt:    clock.Now().UTC(),
	})
}

func (h handlers) initializeInventory(w http.ResponseWriter, r *http.Request) error {
	res, err := h.Inventory.Initialize(r.Context(), Username(r.Context()))
	if err != nil {
		return err
	}
	code := http.StatusOK
	if res.Created {
		code = http.StatusCreated
	}
	return writeJSON(w, code, res)
}

func (h handlers) warehouses(w http.ResponseWriter, r *http.Request) error {
	ws, err := h.Inventory.Warehouses(r.Context())
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, ws)
}
