package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grocery-api/internal/apperr"
	"grocery-api/internal/domain"
	"grocery-api/internal/events"
	"grocery-api/internal/metrics"
	"grocery-api/internal/repository"
)

// AddItemInput es una linea pedida por el cliente; el precio sale siempre del catalogo.
type AddItemInput struct {
	ProductID    string
	VariantLabel string
	Quantity     int
}

// CartDeps agrupa las dependencias del carrito.
type CartDeps struct {
	Logger    *zap.Logger
	Carts     repository.CartRepository
	Catalog   repository.CatalogRepository
	Coupons   *CouponService
	Payments  *PaymentMethodService
	Publisher events.Publisher
	Metrics   *metrics.Metrics
}

type CartService struct {
	logger    *zap.Logger
	carts     repository.CartRepository
	catalog   repository.CatalogRepository
	coupons   *CouponService
	payments  *PaymentMethodService
	publisher events.Publisher
	metrics   *metrics.Metrics
	now       func() time.Time
}

func NewCartService(deps CartDeps) *CartService {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	pub := deps.Publisher
	if pub == nil {
		pub = events.NoopPublisher{}
	}
	return &CartService{
		logger:    logger,
		carts:     deps.Carts,
		catalog:   deps.Catalog,
		coupons:   deps.Coupons,
		payments:  deps.Payments,
		publisher: pub,
		metrics:   deps.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (s *CartService) AddToCart(ctx context.Context, userID string, in AddItemInput, mobile string) (domain.Cart, error) {
	key, err := normalizeKey(in.ProductID, in.VariantLabel)
	if err != nil {
		return domain.Cart{}, err
	}
	if in.Quantity < 1 {
		return domain.Cart{}, ErrInvalidQuantity
	}

	variant, err := s.catalog.GetVariant(ctx, key.ProductID, key.VariantLabel)
	if err != nil {
		if isNotFound(err) {
			return domain.Cart{}, ErrProductNotFound
		}
		return domain.Cart{}, internal("load product variant", err)
	}
	if !variant.Active {
		return domain.Cart{}, ErrProductNotFound
	}
	if variant.Stock <= 0 {
		return domain.Cart{}, ErrOutOfStock
	}

	now := s.now()
	if err := s.carts.EnsureCart(ctx, userID, mobile, now); err != nil {
		return domain.Cart{}, internal("ensure cart", err)
	}
	item := domain.CartItem{
		ProductID:    key.ProductID,
		VariantLabel: key.VariantLabel,
		ProductName:  variant.ProductName,
		Category:     variant.Category,
		Quantity:     in.Quantity,
		UnitPrice:    variant.Price,
	}
	if _, err := s.carts.AddItem(ctx, userID, item, now); err != nil {
		return domain.Cart{}, internal("add cart item", err)
	}
	return s.reload(ctx, userID)
}

// UpdateCartItem fija la cantidad; cero o menos elimina la linea. Si la variante
// sigue activa, la linea toma el precio actual del catalogo.
func (s *CartService) UpdateCartItem(ctx context.Context, userID string, key domain.CartKey, qty int) (domain.Cart, error) {
	key, err := normalizeKey(key.ProductID, key.VariantLabel)
	if err != nil {
		return domain.Cart{}, err
	}
	if qty <= 0 {
		return s.RemoveFromCart(ctx, userID, key)
	}

	var price *decimal.Decimal
	variant, err := s.catalog.GetVariant(ctx, key.ProductID, key.VariantLabel)
	switch {
	case err == nil && variant.Active:
		price = &variant.Price
	case err != nil && !isNotFound(err):
		return domain.Cart{}, internal("load product variant", err)
	}
	if err := s.carts.SetQuantity(ctx, userID, key, qty, price, s.now()); err != nil {
		return domain.Cart{}, s.itemError("update cart item", err)
	}
	return s.reload(ctx, userID)
}

// DecreaseCartItem resta by unidades (1 si by <= 0); en cero la linea desaparece.
func (s *CartService) DecreaseCartItem(ctx context.Context, userID string, key domain.CartKey, by int) (domain.Cart, error) {
	key, err := normalizeKey(key.ProductID, key.VariantLabel)
	if err != nil {
		return domain.Cart{}, err
	}
	if by <= 0 {
		by = 1
	}
	if _, err := s.carts.DecrementQuantity(ctx, userID, key, by, s.now()); err != nil {
		return domain.Cart{}, s.itemError("decrease cart item", err)
	}
	return s.reload(ctx, userID)
}

func (s *CartService) RemoveFromCart(ctx context.Context, userID string, key domain.CartKey) (domain.Cart, error) {
	key, err := normalizeKey(key.ProductID, key.VariantLabel)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := s.carts.RemoveItem(ctx, userID, domain.CartListActive, key, s.now()); err != nil {
		return domain.Cart{}, s.itemError("remove cart item", err)
	}
	return s.reload(ctx, userID)
}

func (s *CartService) MoveToSaveForLater(ctx context.Context, userID string, key domain.CartKey) (domain.Cart, error) {
	return s.move(ctx, userID, key, domain.CartListActive, domain.CartListSaved)
}

func (s *CartService) MoveToCart(ctx context.Context, userID string, key domain.CartKey) (domain.Cart, error) {
	return s.move(ctx, userID, key, domain.CartListSaved, domain.CartListActive)
}

// ClearCart vacia la lista activa y quita el cupon; lo guardado para despues se conserva.
func (s *CartService) ClearCart(ctx context.Context, userID string) (domain.Cart, error) {
	if err := s.carts.ClearItems(ctx, userID, s.now()); err != nil && !isNotFound(err) {
		return domain.Cart{}, internal("clear cart", err)
	}
	return s.GetCart(ctx, userID)
}

// GetCart devuelve un carrito vacio si el usuario todavia no tiene uno.
func (s *CartService) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return emptyCart(userID), nil
		}
		return domain.Cart{}, internal("load cart", err)
	}
	return cart, nil
}

func (s *CartService) UpdateDelivery(ctx context.Context, userID string, tip decimal.Decimal, instructions string) (domain.Cart, error) {
	if tip.IsNegative() {
		return domain.Cart{}, ErrInvalidDeliveryTip
	}
	now := s.now()
	if err := s.carts.EnsureCart(ctx, userID, "", now); err != nil {
		return domain.Cart{}, internal("ensure cart", err)
	}
	if err := s.carts.SetDelivery(ctx, userID, tip.Round(2), strings.TrimSpace(instructions), now); err != nil {
		return domain.Cart{}, internal("update delivery", err)
	}
	return s.GetCart(ctx, userID)
}

// ValidateCart compara cada linea activa con el catalogo actual.
func (s *CartService) ValidateCart(ctx context.Context, userID string) ([]domain.CartIssue, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.issues(ctx, cart)
}

// Checkout cierra el carrito: sin discrepancias, con cupon vigente y medio de pago usable.
func (s *CartService) Checkout(ctx context.Context, userID, paymentMethodID string) (domain.CheckoutSummary, error) {
	summary, err := s.checkout(ctx, userID, paymentMethodID)
	if err != nil {
		s.metrics.Checkout(string(apperr.KindOf(err)))
		return domain.CheckoutSummary{}, err
	}
	s.metrics.Checkout("ok")
	return summary, nil
}

// checkout valida fuera de la transaccion y confirma con CompleteCheckout, que
// rechaza el carrito si cambio desde la lectura. Dos checkouts simultaneos del
// mismo carrito producen un solo pedido.
func (s *CartService) checkout(ctx context.Context, userID, paymentMethodID string) (domain.CheckoutSummary, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return domain.CheckoutSummary{}, err
	}
	if cart.IsEmpty() {
		return domain.CheckoutSummary{}, ErrCartEmpty
	}

	issues, err := s.issues(ctx, cart)
	if err != nil {
		return domain.CheckoutSummary{}, err
	}
	if len(issues) > 0 {
		return domain.CheckoutSummary{}, ErrCartHasIssues.WithDetails(issues)
	}

	couponLimit := 0
	if cart.Coupon != nil {
		quote, err := s.coupons.quote(ctx, cart.Coupon.Code, userID, cart)
		if err != nil {
			if apperr.KindOf(err) == apperr.KindInternal {
				return domain.CheckoutSummary{}, err
			}
			return domain.CheckoutSummary{}, s.dropCoupon(ctx, userID, cart.Coupon.Code, err)
		}
		cart.Coupon.Savings = quote.Savings
		couponLimit = quote.UsageLimitPerUser
	}

	pm, err := s.payments.ResolveForCheckout(ctx, userID, paymentMethodID)
	if err != nil {
		return domain.CheckoutSummary{}, err
	}

	now := s.now()
	summary := domain.CheckoutSummary{
		OrderRef:        uuid.NewString(),
		UserID:          userID,
		Items:           cart.Items,
		Subtotal:        cart.Subtotal(),
		Savings:         cart.Savings(),
		DeliveryTip:     cart.DeliveryTip,
		Total:           cart.Total(),
		PaymentMethodID: pm.ID,
		PlacedAt:        now,
	}
	commit := repository.CheckoutCommit{
		UserID:   userID,
		OrderRef: summary.OrderRef,
		Version:  cart.UpdatedAt,
		Now:      now,
	}
	if cart.Coupon != nil {
		summary.CouponCode = cart.Coupon.Code
		commit.CouponCode = cart.Coupon.Code
		commit.CouponLimit = couponLimit
	}

	switch err := s.carts.CompleteCheckout(ctx, commit); {
	case errors.Is(err, repository.ErrStale):
		return domain.CheckoutSummary{}, ErrCartChanged
	case errors.Is(err, repository.ErrLimitReached):
		return domain.CheckoutSummary{}, s.dropCoupon(ctx, userID, commit.CouponCode, ErrCouponUsageExceeded)
	case err != nil:
		return domain.CheckoutSummary{}, internal("complete checkout", err)
	}

	// El pedido ya existe: un fallo aqui no lo deshace.
	if err := s.payments.MarkUsed(ctx, userID, pm.ID); err != nil {
		s.logger.Warn("mark payment method used failed",
			zap.String("user_id", userID),
			zap.String("payment_method_id", pm.ID),
			zap.Error(err),
		)
	}

	s.logger.Info("cart checked out",
		zap.String("user_id", userID),
		zap.String("order_ref", summary.OrderRef),
		zap.String("total", summary.Total.StringFixed(2)),
	)
	emit(ctx, s.logger, s.publisher, now, events.TypeCartCheckedOut, userID, summary)
	return summary, nil
}

// dropCoupon quita del carrito un cupon que dejo de valer y explica por que.
func (s *CartService) dropCoupon(ctx context.Context, userID, code string, reason error) error {
	if err := s.carts.SetCoupon(ctx, userID, nil, s.now()); err != nil {
		return internal("clear coupon", err)
	}
	return ErrCouponNoLongerValid.WithDetails(map[string]string{
		"code":   code,
		"reason": reason.Error(),
	})
}

func (s *CartService) issues(ctx context.Context, cart domain.Cart) ([]domain.CartIssue, error) {
	issues := []domain.CartIssue{}
	if cart.IsEmpty() {
		return issues, nil
	}
	keys := make([]domain.CartKey, 0, len(cart.Items))
	for _, item := range cart.Items {
		keys = append(keys, item.Key())
	}
	variants, err := s.catalog.GetVariants(ctx, keys)
	if err != nil {
		return nil, internal("load product variants", err)
	}

	for _, item := range cart.Items {
		issue := domain.CartIssue{
			ProductID:         item.ProductID,
			VariantLabel:      item.VariantLabel,
			RequestedQuantity: item.Quantity,
		}
		v, ok := variants[item.Key()]
		switch {
		case !ok || !v.Active:
			issue.Kind = domain.CartIssueUnavailable
			issue.Message = "product is no longer available"
		case v.Stock <= 0:
			issue.Kind = domain.CartIssueOutOfStock
			issue.Message = "product is out of stock"
			stock := v.Stock
			issue.AvailableStock = &stock
		case v.Stock < item.Quantity:
			issue.Kind = domain.CartIssueInsufficientStock
			issue.Message = "not enough stock for the requested quantity"
			stock := v.Stock
			issue.AvailableStock = &stock
		case !v.Price.Equal(item.UnitPrice):
			issue.Kind = domain.CartIssuePriceChanged
			issue.Message = "price changed since the item was added"
			snapshot, current := item.UnitPrice, v.Price
			issue.SnapshotPrice = &snapshot
			issue.CurrentPrice = &current
		default:
			continue
		}
		issues = append(issues, issue)
	}
	return issues, nil
}

func (s *CartService) move(ctx context.Context, userID string, key domain.CartKey, from, to string) (domain.Cart, error) {
	key, err := normalizeKey(key.ProductID, key.VariantLabel)
	if err != nil {
		return domain.Cart{}, err
	}
	if err := s.carts.MoveItem(ctx, userID, key, from, to, s.now()); err != nil {
		return domain.Cart{}, s.itemError("move cart item", err)
	}
	return s.reload(ctx, userID)
}

// reload relee el carrito y reconcilia el cupon tras una mutacion de items.
func (s *CartService) reload(ctx context.Context, userID string) (domain.Cart, error) {
	cart, err := s.GetCart(ctx, userID)
	if err != nil {
		return domain.Cart{}, err
	}
	return s.coupons.Reconcile(ctx, cart)
}

func (s *CartService) itemError(op string, err error) error {
	if isNotFound(err) {
		return ErrCartItemNotFound
	}
	return internal(op, err)
}

func normalizeKey(productID, label string) (domain.CartKey, error) {
	key := domain.CartKey{
		ProductID:    strings.TrimSpace(productID),
		VariantLabel: strings.TrimSpace(label),
	}
	var fields []apperr.FieldError
	if key.ProductID == "" {
		fields = append(fields, apperr.FieldError{Field: "productId", Code: "required", Message: "product id is required"})
	}
	if key.VariantLabel == "" {
		fields = append(fields, apperr.FieldError{Field: "variantLabel", Code: "required", Message: "variant label is required"})
	}
	if len(fields) > 0 {
		return domain.CartKey{}, ErrInvalidCartItem.WithDetails(fields)
	}
	return key, nil
}
