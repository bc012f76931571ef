// Package procurement prices and tracks the material orders placed for projects.
package procurement

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"iter"
	"math"
	"slices"
	"sort"
	"strings"
	"time"

	"go.llib.dev/frameless/pkg/errorkit"
	"go.llib.dev/frameless/pkg/iterkit"
	"go.llib.dev/frameless/pkg/logger"
	"go.llib.dev/frameless/pkg/logging"
	"go.llib.dev/frameless/port/crud"
	"go.llib.dev/testcase/clock"

	"plangrid/domain/notification"
	"plangrid/domain/project"
)

const (
	ErrNotFound       errorkit.Error = "Order not found or access denied"
	ErrStatusRequired errorkit.Error = "Order status is required"
	ErrInvalidOrder   errorkit.Error = "Invalid order"
)

const (
	StatusPending = "PENDING"
)

// DefaultUnitPrice applies to materials missing from the price table.
const DefaultUnitPrice = 1000

var unitPrices = map[string]float64{
	"Steel Tower":        45000,
	"Conductor Cable":    850,
	"Insulator":          1200,
	"Power Transformer":  2500000,
	"Switchgear":         180000,
	"Circuit Breaker":    95000,
	"Cable Tray":         350,
	"Lightning Arrester": 8500,
	"Surge Arrester":     12000,
	"Busbar":             2800,
}

type Dealer struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Contact string `json:"contact"`
	Email   string `json:"email"`
	Address string `json:"address"`
	// Markup multiplies the list price of every order placed with the dealer.
	Markup float64 `json:"-"`
}

var dealers = []Dealer{
	{ID: 1, Name: "Power Tech Solutions", Contact: "+91-98765-43210", Email: "sales@powertech.com", Address: "Mumbai, Maharashtra", Markup: 1.05},
	{ID: 2, Name: "Grid Equipment Ltd", Contact: "+91-98765-43211", Email: "orders@gridequip.com", Address: "Delhi, NCR", Markup: 0.98},
	{ID: 3, Name: "Electrical Components Co", Contact: "+91-98765-43212", Email: "info@eleccomp.com", Address: "Bangalore, Karnataka", Markup: 1.02},
}

func Dealers() []Dealer {
	return slices.Clone(dealers)
}

// UnitPrice is the list price of the material adjusted by the first dealer named in dealer.
func UnitPrice(material, dealer string) float64 {
	price, ok := unitPrices[material]
	if !ok {
		price = DefaultUnitPrice
	}
	for _, d := range dealers {
		if strings.Contains(dealer, d.Name) {
			return price * d.Markup
		}
	}
	return price
}

// round2 rounds half to even.
func round2(v float64) float64 {
	return math.RoundToEven(v*100) / 100
}

type Order struct {
	ID               string    `ext:"id" json:"order_id"`
	Project          string    `json:"project,omitempty"`
	ProjectID        string    `json:"project_id,omitempty"`
	Material         string    `json:"material"`
	Dealer           string    `json:"dealer"`
	Quantity         float64   `json:"quantity"`
	UnitPrice        float64   `json:"unit_price"`
	TotalPrice       float64   `json:"total_price"`
	ExpectedDelivery string    `json:"expected_delivery,omitempty"`
	Status           string    `json:"status"`
	CreatedBy        string    `json:"created_by"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedBy        string    `json:"updated_by,omitempty"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Repository interface {
	crud.Creator[Order]
	crud.ByIDFinder[Order, string]
	crud.Updater[Order]
	crud.ByIDDeleter[string]
	QueryMany(ctx context.Context, filter func(Order) bool) iter.Seq2[Order, error]
}

type Service struct {
	Orders   Repository
	Projects project.Service
	Hub      *notification.Hub
}

// NewOrderID returns ORD_<YYYYMMDDHHMMSS>.
func NewOrderID(now time.Time) string {
	return "ORD_" + now.Format("20060102150405")
}

// Draft is what a user submits when placing an order.
type Draft struct {
	Project          string  `json:"project"`
	ProjectID        string  `json:"project_id"`
	Material         string  `json:"material"`
	Dealer           string  `json:"dealer"`
	Quantity         float64 `json:"quantity"`
	ExpectedDelivery string  `json:"expected_delivery"`
}

// Create prices and stores a pending order.
// Orders linked to a project with a team are announced to the team.
func (s Service) Create(ctx context.Context, username string, d Draft) (Order, error) {
	if d.Quantity < 0 {
		return Order{}, ErrInvalidOrder.F("quantity must not be negative")
	}
	now := clock.Now().UTC()
	unit := UnitPrice(d.Material, d.Dealer)
	o := Order{
		ID:               NewOrderID(now),
		Project:          d.Project,
		ProjectID:        d.ProjectID,
		Material:         d.Material,
		Dealer:           d.Dealer,
		Quantity:         d.Quantity,
		UnitPrice:        round2(unit),
		TotalPrice:       round2(d.Quantity * unit),
		ExpectedDelivery: d.ExpectedDelivery,
		Status:           StatusPending,
		CreatedBy:        username,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.Orders.Create(ctx, &o); err != nil {
		if !errors.Is(err, crud.ErrAlreadyExists) {
			return Order{}, err
		}
		o.ID = NewOrderID(now) + "_" + randomHex()
		if err := s.Orders.Create(ctx, &o); err != nil {
			return Order{}, err
		}
	}
	if p, ok := s.linkedProject(ctx, o); ok {
		s.Hub.Publish(ctx, p.TeamID, notification.UpdateOrderCreated, map[string]any{
			"order_id":     o.ID,
			"project_name": p.Name,
			"project_id":   p.ID,
			"material":     o.Material,
			"quantity":     o.Quantity,
			"created_by":   username,
		})
	}
	logger.Info(ctx, "order created",
		logging.Field("order_id", o.ID),
		logging.Field("total_price", o.TotalPrice))
	return o, nil
}

func randomHex() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func (s Service) linkedProject(ctx context.Context, o Order) (project.Project, bool) {
	if o.ProjectID == "" {
		return project.Project{}, false
	}
	p, found, err := s.Projects.Projects.FindByID(ctx, o.ProjectID)
	if err != nil {
		logger.Warn(ctx, "order project lookup failed", logging.ErrField(err), logging.Field("order_id", o.ID))
		return project.Project{}, false
	}
	return p, found && p.TeamID != ""
}

// List returns the orders of accessible projects, matched by id or by name, and the user's own orders, newest first.
func (s Service) List(ctx context.Context, username string) ([]Order, error) {
	ps, err := s.Projects.Accessible(ctx, username)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]struct{}, len(ps))
	names := make(map[string]struct{}, len(ps))
	for _, p := range ps {
		ids[p.ID] = struct{}{}
		names[p.Name] = struct{}{}
	}
	orders, err := iterkit.CollectE(s.Orders.QueryMany(ctx, func(o Order) bool {
		if o.CreatedBy == username {
			return true
		}
		if _, ok := ids[o.ProjectID]; ok && o.ProjectID != "" {
			return true
		}
		_, ok := names[o.Project]
		return ok && o.Project != ""
	}))
	if err != nil {
		return nil, err
	}
	if orders == nil {
		orders = []Order{}
	}
	sort.SliceStable(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	return orders, nil
}

// UpdateStatus changes the status of an order created by the user.
func (s Service) UpdateStatus(ctx context.Context, username, id, status string) error {
	if strings.TrimSpace(status) == "" {
		return ErrStatusRequired
	}
	o, found, err := s.Orders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found || o.CreatedBy != username {
		return ErrNotFound
	}
	old := o.Status
	o.Status = status
	o.UpdatedBy = username
	o.UpdatedAt = clock.Now().UTC()
	if err := s.Orders.Update(ctx, &o); err != nil {
		return err
	}
	if p, ok := s.linkedProject(ctx, o); ok {
		s.Hub.Publish(ctx, p.TeamID, notification.UpdateOrderStatusChanged, map[string]any{
			"order_id":     o.ID,
			"project_name": p.Name,
			"project_id":   p.ID,
			"old_status":   old,
			"new_status":   status,
			"updated_by":   username,
		})
	}
	return nil
}

// Delete removes an order created by the user.
func (s Service) Delete(ctx context.Context, username, id string) error {
	o, found, err := s.Orders.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if !found || o.CreatedBy != username {
		return ErrNotFound
	}
	return s.Orders.DeleteByID(ctx, id)
}

// PurchaseOrder is the purchasing view of an order.
type PurchaseOrder struct {
	ID               string    `json:"id"`
	RequestID        string    `json:"request_id"`
	DealerID         string    `json:"dealer_id"`
	Status           string    `json:"status"`
	Material         string    `json:"material"`
	Quantity         float64   `json:"quantity"`
	TotalPrice       float64   `json:"total_price"`
	CreatedAt        time.Time `json:"created_at"`
	Project          string    `json:"project"`
	ExpectedDelivery string    `json:"expected_delivery"`
}

func (s Service) PurchaseOrders(ctx context.Context, username string) ([]PurchaseOrder, error) {
	orders, err := s.List(ctx, username)
	if err != nil {
		return nil, err
	}
	out := make([]PurchaseOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, PurchaseOrder{
			ID:               o.ID,
			RequestID:        o.ID,
			DealerID:         o.Dealer,
			Status:           o.Status,
			Material:         o.Material,
			Quantity:         o.Quantity,
			TotalPrice:       o.TotalPrice,
			CreatedAt:        o.CreatedAt,
			Project:          o.Project,
			ExpectedDelivery: o.ExpectedDelivery,
		})
	}
	return out, nil
}

// PurchaseRequest is reserved for an approval workflow that does not exist yet.
type PurchaseRequest struct {
	ID       string  `json:"id"`
	Material string  `json:"material"`
	Quantity float64 `json:"quantity"`
	Status   string  `json:"status"`
}

func (s Service) PurchaseRequests(ctx context.Context, username string) ([]PurchaseRequest, error) {
	return []PurchaseRequest{}, nil
}
