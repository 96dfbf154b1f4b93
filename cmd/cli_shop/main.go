package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"grocery-api/internal/apperr"
	"grocery-api/internal/config"
	"grocery-api/internal/db"
	"grocery-api/internal/domain"
	"grocery-api/internal/repository"
	"grocery-api/internal/service"
	"grocery-api/internal/sms"
	"grocery-api/migrations"
)

// shop agrupa los servicios que usa la consola.
type shop struct {
	auth     *service.AuthService
	carts    *service.CartService
	coupons  *service.CouponService
	payments *service.PaymentMethodService
}

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool, migrations.Files); err != nil {
		log.Fatalf("migraciones: %v", err)
	}

	userRepo := repository.NewPgUserRepository(pool)
	otpRepo := repository.NewPgOTPRepository(pool)
	cartRepo := repository.NewPgCartRepository(pool)

	jwtSvc := service.NewJWTService(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
	)
	couponSvc := service.NewCouponService(logger, repository.NewPgCouponRepository(pool), cartRepo)
	paymentSvc := service.NewPaymentMethodService(logger, repository.NewPgPaymentMethodRepository(pool))
	s := shop{
		// El codigo se muestra en consola: la CLI no envia SMS reales.
		auth: service.NewAuthService(service.AuthDeps{
			Logger: logger,
			OTPs:   otpRepo,
			Users:  userRepo,
			Sender: sms.NewConsoleSender(logger, nil),
			JWT:    jwtSvc,
		}, service.OTPOptions{TTL: cfg.OTPTTL, MaxAttempts: cfg.OTPMaxAttempts}),
		carts: service.NewCartService(service.CartDeps{
			Logger:   logger,
			Carts:    cartRepo,
			Catalog:  repository.NewPgCatalogRepository(pool),
			Coupons:  couponSvc,
			Payments: paymentSvc,
		}),
		coupons:  couponSvc,
		payments: paymentSvc,
	}

	fmt.Println("===== Grocery Console =====")
	fmt.Print("Sembrar catalogo y cupones de demo? [s/N]: ")
	if answer := readLine(reader); strings.EqualFold(answer, "s") {
		if err := seedDemoData(ctx, pool); err != nil {
			log.Fatalf("sembrar datos: %v", err)
		}
		fmt.Println("Datos de demo listos.")
	}

	user, err := loginFlow(ctx, reader, s.auth)
	if err != nil {
		log.Fatalf("login: %v", err)
	}
	fmt.Printf("Sesion iniciada como %s (ID: %s)\n", user.MobileNumber, user.ID)

	runActionsMenu(ctx, reader, pool, s, user)
}

func loginFlow(ctx context.Context, reader *bufio.Reader, auth *service.AuthService) (domain.User, error) {
	for {
		fmt.Print("Numero movil: ")
		mobile := readLine(reader)
		if _, err := auth.SendOTP(ctx, mobile); err != nil {
			fmt.Printf("No se pudo enviar el OTP: %s\n", describe(err))
			continue
		}
		fmt.Print("OTP (ver log de consola): ")
		code := readLine(reader)
		res, err := auth.VerifyOTPAndLogin(ctx, mobile, code)
		if err != nil {
			fmt.Printf("Verificacion fallida: %s\n", describe(err))
			continue
		}
		return res.User, nil
	}
}

func runActionsMenu(ctx context.Context, reader *bufio.Reader, pool *pgxpool.Pool, s shop, user domain.User) {
	for {
		fmt.Println("\n--- Menu ---")
		fmt.Println("[1] Ver catalogo")
		fmt.Println("[2] Agregar al carrito")
		fmt.Println("[3] Ver carrito")
		fmt.Println("[4] Cupones disponibles")
		fmt.Println("[5] Aplicar cupon")
		fmt.Println("[6] Agregar tarjeta")
		fmt.Println("[7] Checkout")
		fmt.Println("[8] Salir")
		fmt.Print("Selecciona una opcion: ")

		var err error
		switch readLine(reader) {
		case "1":
			err = printCatalog(ctx, pool)
		case "2":
			err = addToCartFlow(ctx, reader, s.carts, user)
		case "3":
			var cart domain.Cart
			if cart, err = s.carts.GetCart(ctx, user.ID); err == nil {
				printCart(cart)
			}
		case "4":
			err = printCoupons(ctx, s.coupons, user.ID)
		case "5":
			fmt.Print("Codigo: ")
			var cart domain.Cart
			if cart, _, err = s.coupons.ApplyCoupon(ctx, readLine(reader), user.ID); err == nil {
				printCart(cart)
			}
		case "6":
			err = addCardFlow(ctx, reader, s.payments, user.ID)
		case "7":
			var summary domain.CheckoutSummary
			if summary, err = s.carts.Checkout(ctx, user.ID, ""); err == nil {
				fmt.Printf("Pedido %s confirmado. Total: %s\n", summary.OrderRef, summary.Total.StringFixed(2))
			}
		case "8":
			os.Exit(0)
		default:
			fmt.Println("Opcion invalida.")
		}
		if err != nil {
			fmt.Printf("Error: %s\n", describe(err))
		}
	}
}

func addToCartFlow(ctx context.Context, reader *bufio.Reader, carts *service.CartService, user domain.User) error {
	fmt.Print("Producto: ")
	productID := readLine(reader)
	fmt.Print("Variante: ")
	label := readLine(reader)
	qty := readIntDefault(reader, "Cantidad (default 1): ", 1)

	cart, err := carts.AddToCart(ctx, user.ID, service.AddItemInput{
		ProductID:    productID,
		VariantLabel: label,
		Quantity:     qty,
	}, user.MobileNumber)
	if err != nil {
		return err
	}
	printCart(cart)
	return nil
}

func addCardFlow(ctx context.Context, reader *bufio.Reader, payments *service.PaymentMethodService, userID string) error {
	fmt.Print("Token del gateway: ")
	token := readLine(reader)
	fmt.Print("Marca: ")
	brand := readLine(reader)
	fmt.Print("Ultimos 4 digitos: ")
	lastFour := readLine(reader)
	month := readIntDefault(reader, "Mes de vencimiento: ", 0)
	year := readIntDefault(reader, "Anio de vencimiento: ", 0)
	fmt.Print("Usar como default? [s/N]: ")
	makeDefault := strings.EqualFold(readLine(reader), "s")

	pm, err := payments.AddPaymentMethod(ctx, userID, service.AddPaymentMethodInput{
		GatewayToken: token,
		Brand:        brand,
		LastFour:     lastFour,
		ExpMonth:     month,
		ExpYear:      year,
		MakeDefault:  makeDefault,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Tarjeta %s ****%s agregada (default: %t)\n", pm.Brand, pm.LastFour, pm.IsDefault)
	return nil
}

func printCart(cart domain.Cart) {
	if cart.IsEmpty() {
		fmt.Println("El carrito esta vacio.")
	}
	for _, item := range cart.Items {
		fmt.Printf("  %s %s x%d @ %s = %s\n", item.ProductID, item.VariantLabel, item.Quantity, item.UnitPrice.StringFixed(2), item.LineTotal().StringFixed(2))
	}
	if cart.Coupon != nil {
		fmt.Printf("  Cupon %s: -%s\n", cart.Coupon.Code, cart.Coupon.Savings.StringFixed(2))
	}
	totals := cart.Totals()
	fmt.Printf("  Subtotal %s | Ahorro %s | Propina %s | Total %s\n",
		totals.Subtotal.StringFixed(2), totals.Savings.StringFixed(2), totals.DeliveryTip.StringFixed(2), totals.Total.StringFixed(2))
}

func printCoupons(ctx context.Context, coupons *service.CouponService, userID string) error {
	list, err := coupons.AvailableCoupons(ctx, userID)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No hay cupones disponibles.")
	}
	for _, c := range list {
		if c.Applicable && c.Savings != nil {
			fmt.Printf("  %s: ahorro %s\n", c.Coupon.Code, c.Savings.StringFixed(2))
		} else {
			fmt.Printf("  %s: no aplica (%s)\n", c.Coupon.Code, c.Reason)
		}
	}
	return nil
}

func printCatalog(ctx context.Context, pool *pgxpool.Pool) error {
	const query = `
		SELECT product_id, variant_label, product_name, price, stock
		FROM product_variants
		WHERE active
		ORDER BY product_id, variant_label
	`
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id, label, name string
			price           decimal.Decimal
			stock           int
		)
		if err := rows.Scan(&id, &label, &name, &price, &stock); err != nil {
			return err
		}
		fmt.Printf("  %s / %s  %s  %s (stock %d)\n", id, label, name, price.StringFixed(2), stock)
	}
	return rows.Err()
}

// seedDemoData carga un catalogo minimo; no pisa filas existentes.
func seedDemoData(ctx context.Context, pool *pgxpool.Pool) error {
	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		variants := []domain.ProductVariant{
			{ProductID: "milk", ProductName: "Toned Milk", Category: "dairy", Label: "1l", Price: decimal.RequireFromString("56"), Stock: 50, Active: true},
			{ProductID: "bread", ProductName: "Brown Bread", Category: "bakery", Label: "400g", Price: decimal.RequireFromString("45"), Stock: 30, Active: true},
			{ProductID: "rice", ProductName: "Basmati Rice", Category: "staples", Label: "5kg", Price: decimal.RequireFromString("520"), Stock: 20, Active: true},
		}
		for _, v := range variants {
			if _, err := tx.Exec(ctx, `
				INSERT INTO product_variants (product_id, product_name, category, variant_label, price, stock, active)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				ON CONFLICT (product_id, variant_label) DO NOTHING
			`, v.ProductID, v.ProductName, v.Category, v.Label, v.Price, v.Stock, v.Active); err != nil {
				return fmt.Errorf("insert variant %s: %w", v.ProductID, err)
			}
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO coupons (code, description, discount_type, discount_value, max_discount, min_cart_value, usage_limit_per_user, applicable_categories)
			VALUES ('WELCOME50', 'Flat 50 off on your first order', 'flat', 50, 0, 300, 1, '{}'),
			       ('DAIRY10', '10% off dairy', 'percent', 10, 40, 0, 0, '{dairy}')
			ON CONFLICT (code) DO NOTHING
		`)
		return err
	})
}

func describe(err error) string {
	var appErr *apperr.Error
	if errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal {
		return appErr.Message
	}
	return err.Error()
}

func readLine(reader *bufio.Reader) string {
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func readIntDefault(reader *bufio.Reader, prompt string, def int) int {
	fmt.Print(prompt)
	line := readLine(reader)
	if line == "" {
		return def
	}
	if v, err := strconv.Atoi(line); err == nil {
		return v
	}
	return def
}
