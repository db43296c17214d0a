package models_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/yeboahd24/t-beauty/config"
	"github.com/yeboahd24/t-beauty/models"
	"github.com/yeboahd24/t-beauty/utils"
	"github.com/yeboahd24/t-beauty/workflow"
)

// setupEngineTest boots redis + mysql in docker, connects the config
// singletons, migrates a fresh schema, and returns an authenticated
// owner context.
func setupEngineTest(t *testing.T) (context.Context, string) {
	t.Helper()
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "tbeauty_test")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ownerId := uuid.NewString()
	ctx := context.Background()
	ctx = utils.SetOwnerIdInContext(ctx, ownerId)
	ctx = utils.SetUserIdInContext(ctx, 1)
	ctx = utils.SetUserNameInContext(ctx, "Test")
	ctx = utils.SetUsernameInContext(ctx, "test@local")
	return ctx, ownerId
}

func mustCreateCustomer(t *testing.T, ctx context.Context) *models.Customer {
	t.Helper()
	customer, err := models.CreateCustomer(ctx, &models.NewCustomer{
		FirstName:       "Ama",
		LastName:        "Mensah",
		InstagramHandle: "@ama.glam",
	})
	if err != nil {
		t.Fatalf("CreateCustomer: %v", err)
	}
	return customer
}

func mustCreateProduct(t *testing.T, ctx context.Context, sku string) *models.Product {
	t.Helper()
	product, err := models.CreateProduct(ctx, &models.NewProduct{
		Sku:       sku,
		Name:      "Matte Lipstick",
		BasePrice: decimal.RequireFromString("45.00"),
		Category:  "lips",
	})
	if err != nil {
		t.Fatalf("CreateProduct: %v", err)
	}
	return product
}

func mustCreateUnit(t *testing.T, ctx context.Context, productId int, stock int, sellingPrice string) *models.InventoryUnit {
	t.Helper()
	unit, err := models.CreateInventoryUnit(ctx, &models.NewInventoryUnit{
		ProductId:    productId,
		InitialStock: stock,
		SellingPrice: decimal.RequireFromString(sellingPrice),
		CostPrice:    decimal.RequireFromString("20.00"),
	})
	if err != nil {
		t.Fatalf("CreateInventoryUnit: %v", err)
	}
	return unit
}

func reloadUnit(t *testing.T, ctx context.Context, id int) *models.InventoryUnit {
	t.Helper()
	db := config.GetDB()
	var unit models.InventoryUnit
	if err := db.WithContext(ctx).First(&unit, id).Error; err != nil {
		t.Fatalf("reload unit %d: %v", id, err)
	}
	return &unit
}

func assertLedgerMatchesStock(t *testing.T, ctx context.Context, unitId int) {
	t.Helper()
	unit := reloadUnit(t, ctx, unitId)
	replayed, err := models.ReconstructStock(ctx, config.GetDB(), unitId)
	if err != nil {
		t.Fatalf("ReconstructStock(%d): %v", unitId, err)
	}
	if replayed != unit.CurrentStock {
		t.Fatalf("unit %d: ledger replays to %d but current_stock is %d", unitId, replayed, unit.CurrentStock)
	}
}

func TestOrderAllocationLifecycle(t *testing.T) {
	ctx, ownerId := setupEngineTest(t)
	db := config.GetDB()

	customer := mustCreateCustomer(t, ctx)
	product := mustCreateProduct(t, ctx, "LIP-001")
	unitA := mustCreateUnit(t, ctx, product.ID, 10, "12.00")
	unitB := mustCreateUnit(t, ctx, product.ID, 6, "15.00")

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: customer.ID,
		Lines: []*models.NewOrderLine{
			{ProductId: product.ID, Quantity: 12},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if order.Status != models.OrderStatusPending {
		t.Fatalf("new order status = %s, want pending", order.Status)
	}

	// Confirm: 12 requested against units of 10 and 6. The deeper unit
	// drains first, the rest comes from the next one.
	confirmed, err := models.ConfirmOrder(ctx, order.ID, false)
	if err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}
	if confirmed.Status != models.OrderStatusConfirmed {
		t.Fatalf("status after confirm = %s", confirmed.Status)
	}

	a := reloadUnit(t, ctx, unitA.ID)
	b := reloadUnit(t, ctx, unitB.ID)
	if a.CurrentStock != 0 || a.AllocatedQty != 10 {
		t.Fatalf("unit A stock=%d allocated=%d, want 0/10", a.CurrentStock, a.AllocatedQty)
	}
	if b.CurrentStock != 4 || b.AllocatedQty != 2 {
		t.Fatalf("unit B stock=%d allocated=%d, want 4/2", b.CurrentStock, b.AllocatedQty)
	}
	assertLedgerMatchesStock(t, ctx, unitA.ID)
	assertLedgerMatchesStock(t, ctx, unitB.ID)

	// Allocation conservation: allocation rows sum to the line's
	// allocated quantity.
	status, err := models.GetAllocationStatus(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetAllocationStatus: %v", err)
	}
	if len(status.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(status.Lines))
	}
	line := status.Lines[0]
	if line.Allocated != 12 || !line.FullyCovered {
		t.Fatalf("line allocated=%d fully_covered=%v", line.Allocated, line.FullyCovered)
	}
	sum := 0
	for _, alloc := range line.Allocations {
		sum += alloc.Quantity
	}
	if sum != line.Allocated {
		t.Fatalf("allocation rows sum to %d, line says %d", sum, line.Allocated)
	}

	// Shipping is gated twice: payment first, then full fulfillment.
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusProcessing, models.StatusMeta{}); err != nil {
		t.Fatalf("to processing: %v", err)
	}
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusPacked, models.StatusMeta{}); err != nil {
		t.Fatalf("to packed: %v", err)
	}
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, models.StatusMeta{}); err == nil {
		t.Fatal("ship succeeded with payment still pending")
	}
	paid := decimal.RequireFromString("540.00")
	if _, err := models.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusPaid, &paid, "momo", "MM-123"); err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, models.StatusMeta{}); err == nil {
		t.Fatal("ship succeeded with nothing fulfilled")
	}

	if _, err := models.FulfillOrderLine(ctx, order.ID, line.LineId, 12); err != nil {
		t.Fatalf("FulfillOrderLine: %v", err)
	}
	// Over-fulfillment is rejected.
	var overErr *models.OverFulfillmentError
	if _, err := models.FulfillOrderLine(ctx, order.ID, line.LineId, 1); !errors.As(err, &overErr) {
		t.Fatalf("expected OverFulfillmentError, got %v", err)
	}
	// Fulfillment entries are audit markers; stock is untouched.
	assertLedgerMatchesStock(t, ctx, unitA.ID)

	shipped, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, models.StatusMeta{
		TrackingNumber: "GH-TRACK-9",
		Courier:        "Speedaf",
	})
	if err != nil {
		t.Fatalf("to shipped: %v", err)
	}
	if shipped.ShippedAt == nil || shipped.TrackingNumber != "GH-TRACK-9" {
		t.Fatalf("shipment metadata not recorded: %+v", shipped)
	}

	// Shipped orders can no longer cancel.
	if _, err := models.CancelOrder(ctx, order.ID, "changed mind"); err == nil {
		t.Fatal("cancel succeeded after shipment")
	}

	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusDelivered, models.StatusMeta{}); err != nil {
		t.Fatalf("to delivered: %v", err)
	}

	// Return restocks through the ledger, routed back to the exact
	// units the goods came from.
	returned, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusReturned, models.StatusMeta{})
	if err != nil {
		t.Fatalf("to returned: %v", err)
	}
	if returned.Status != models.OrderStatusReturned {
		t.Fatalf("status = %s", returned.Status)
	}
	a = reloadUnit(t, ctx, unitA.ID)
	b = reloadUnit(t, ctx, unitB.ID)
	if a.CurrentStock != 10 || b.CurrentStock != 6 {
		t.Fatalf("after return stock A=%d B=%d, want 10/6", a.CurrentStock, b.CurrentStock)
	}
	assertLedgerMatchesStock(t, ctx, unitA.ID)
	assertLedgerMatchesStock(t, ctx, unitB.ID)

	// Per-owner ledger sequence is strictly increasing with no gaps in
	// order of id.
	var seqs []int64
	if err := db.WithContext(ctx).Model(&models.StockLedgerEntry{}).
		Where("owner_id = ?", ownerId).Order("sequence_no").Pluck("sequence_no", &seqs).Error; err != nil {
		t.Fatalf("pluck sequence_no: %v", err)
	}
	for i, s := range seqs {
		if s != int64(i+1) {
			t.Fatalf("sequence gap at position %d: %v", i, seqs)
		}
	}
}

func TestConfirmShortfallCancelAndRebuild(t *testing.T) {
	ctx, ownerId := setupEngineTest(t)
	db := config.GetDB()

	customer := mustCreateCustomer(t, ctx)
	product := mustCreateProduct(t, ctx, "GLO-003")
	unit := mustCreateUnit(t, ctx, product.ID, 5, "30.00")

	// 1) All-or-nothing: a short confirm changes nothing.
	shortOrder, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: customer.ID,
		Lines: []*models.NewOrderLine{
			{ProductId: product.ID, Quantity: 8},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	var shortErr *models.InsufficientStockError
	if _, err := models.ConfirmOrder(ctx, shortOrder.ID, false); !errors.As(err, &shortErr) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if len(shortErr.Lines) != 1 || shortErr.Lines[0].Requested != 8 || shortErr.Lines[0].Available != 5 {
		t.Fatalf("shortfall = %+v", shortErr.Lines)
	}

	u := reloadUnit(t, ctx, unit.ID)
	if u.CurrentStock != 5 || u.AllocatedQty != 0 {
		t.Fatalf("failed confirm mutated stock: %+v", u)
	}
	reloaded, err := models.GetOrder(ctx, shortOrder.ID)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if reloaded.Status != models.OrderStatusPending {
		t.Fatalf("failed confirm changed status to %s", reloaded.Status)
	}

	// 2) Cancel reverses allocations and is idempotent.
	okOrder, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: customer.ID,
		Lines: []*models.NewOrderLine{
			{ProductId: product.ID, Quantity: 4},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if _, err := models.ConfirmOrder(ctx, okOrder.ID, false); err != nil {
		t.Fatalf("ConfirmOrder: %v", err)
	}
	u = reloadUnit(t, ctx, unit.ID)
	if u.CurrentStock != 1 || u.AllocatedQty != 4 {
		t.Fatalf("after confirm stock=%d allocated=%d, want 1/4", u.CurrentStock, u.AllocatedQty)
	}

	cancelled, err := models.CancelOrder(ctx, okOrder.ID, "customer ghosted")
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if cancelled.Status != models.OrderStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("cancel state: %+v", cancelled)
	}
	u = reloadUnit(t, ctx, unit.ID)
	if u.CurrentStock != 5 || u.AllocatedQty != 0 {
		t.Fatalf("after cancel stock=%d allocated=%d, want 5/0", u.CurrentStock, u.AllocatedQty)
	}
	assertLedgerMatchesStock(t, ctx, unit.ID)

	var allocCount int64
	if err := db.WithContext(ctx).Model(&models.OrderLineAllocation{}).
		Where("order_id = ?", okOrder.ID).Count(&allocCount).Error; err != nil {
		t.Fatalf("count allocations: %v", err)
	}
	if allocCount != 0 {
		t.Fatalf("cancel left %d allocation rows", allocCount)
	}

	again, err := models.CancelOrder(ctx, okOrder.ID, "retry click")
	if err != nil {
		t.Fatalf("second cancel: %v", err)
	}
	if again.Status != models.OrderStatusCancelled {
		t.Fatalf("second cancel status = %s", again.Status)
	}
	u = reloadUnit(t, ctx, unit.ID)
	if u.CurrentStock != 5 {
		t.Fatalf("second cancel double-restocked: %d", u.CurrentStock)
	}

	// 3) Rebuild repairs a corrupted cache from the ledger.
	if err := db.WithContext(ctx).Model(&models.InventoryUnit{}).
		Where("id = ?", unit.ID).UpdateColumn("current_stock", 999).Error; err != nil {
		t.Fatalf("corrupt stock: %v", err)
	}
	if _, _, err := workflow.RebuildOwnerStock(ctx, db, config.GetLogger(), ownerId); err != nil {
		t.Fatalf("RebuildOwnerStock: %v", err)
	}
	u = reloadUnit(t, ctx, unit.ID)
	if u.CurrentStock != 5 {
		t.Fatalf("rebuild left stock at %d, want 5", u.CurrentStock)
	}
}

// A back-ordered line ships once everything allocated to it is fulfilled,
// even though fulfilled < requested, and shipping may happen straight from
// confirmed without walking through processing and packed.
func TestPartialAllocationShipsOnceAllocationFulfilled(t *testing.T) {
	ctx, _ := setupEngineTest(t)
	t.Setenv("ALLOW_PARTIAL_ALLOCATION", "true")

	customer := mustCreateCustomer(t, ctx)
	product := mustCreateProduct(t, ctx, "LIP-007")
	unit := mustCreateUnit(t, ctx, product.ID, 5, "25.00")

	order, err := models.CreateOrder(ctx, &models.NewOrder{
		CustomerId: customer.ID,
		Lines: []*models.NewOrderLine{
			{ProductId: product.ID, Quantity: 8},
		},
	})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}

	confirmed, err := models.ConfirmOrder(ctx, order.ID, true)
	if err != nil {
		t.Fatalf("ConfirmOrder (partial): %v", err)
	}
	if confirmed.Status != models.OrderStatusConfirmed {
		t.Fatalf("status after partial confirm = %s", confirmed.Status)
	}

	status, err := models.GetAllocationStatus(ctx, order.ID)
	if err != nil {
		t.Fatalf("GetAllocationStatus: %v", err)
	}
	line := status.Lines[0]
	if line.Allocated != 5 || line.FullyCovered {
		t.Fatalf("partial line allocated=%d fully_covered=%v, want 5/false", line.Allocated, line.FullyCovered)
	}

	paid := decimal.RequireFromString("200.00")
	if _, err := models.UpdatePaymentStatus(ctx, order.ID, models.PaymentStatusPartial, &paid, "momo", "MM-771"); err != nil {
		t.Fatalf("UpdatePaymentStatus: %v", err)
	}

	// Nothing fulfilled yet: the ship gate holds.
	if _, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, models.StatusMeta{}); err == nil {
		t.Fatal("ship succeeded with allocation unfulfilled")
	}

	// Fulfilling the allocated 5 satisfies the gate; the 3 back-ordered
	// pieces do not hold the shipment.
	if _, err := models.FulfillOrderLine(ctx, order.ID, line.LineId, 5); err != nil {
		t.Fatalf("FulfillOrderLine: %v", err)
	}
	shipped, err := models.UpdateOrderStatus(ctx, order.ID, models.OrderStatusShipped, models.StatusMeta{TrackingNumber: "GH-TRACK-77"})
	if err != nil {
		t.Fatalf("ship from confirmed after fulfilling allocation: %v", err)
	}
	if shipped.Status != models.OrderStatusShipped || shipped.ShippedAt == nil {
		t.Fatalf("shipment not recorded: %+v", shipped)
	}
	assertLedgerMatchesStock(t, ctx, unit.ID)
}

// Concurrent confirms racing for one unit never allocate more than the
// unit holds; losers fail cleanly and the ledger still replays to the
// cached stock.
func TestConcurrentConfirmsNeverOversell(t *testing.T) {
	ctx, _ := setupEngineTest(t)
	db := config.GetDB()

	customer := mustCreateCustomer(t, ctx)
	product := mustCreateProduct(t, ctx, "SET-010")
	unit := mustCreateUnit(t, ctx, product.ID, 10, "18.00")

	const orders = 8
	const qtyPerOrder = 3

	orderIds := make([]int, 0, orders)
	for i := 0; i < orders; i++ {
		order, err := models.CreateOrder(ctx, &models.NewOrder{
			CustomerId: customer.ID,
			Lines: []*models.NewOrderLine{
				{ProductId: product.ID, Quantity: qtyPerOrder},
			},
		})
		if err != nil {
			t.Fatalf("CreateOrder %d: %v", i, err)
		}
		orderIds = append(orderIds, order.ID)
	}

	errCh := make(chan error, orders)
	var wg sync.WaitGroup
	for _, id := range orderIds {
		wg.Add(1)
		go func(orderId int) {
			defer wg.Done()
			_, err := models.ConfirmOrder(ctx, orderId, false)
			errCh <- err
		}(id)
	}
	wg.Wait()
	close(errCh)

	succeeded := 0
	for err := range errCh {
		if err == nil {
			succeeded++
			continue
		}
		var shortErr *models.InsufficientStockError
		if !errors.As(err, &shortErr) {
			t.Fatalf("losing confirm failed with %v, want InsufficientStockError", err)
		}
	}
	// 10 in stock, 3 per order: exactly three confirms can win.
	if succeeded != 3 {
		t.Fatalf("%d confirms succeeded, want 3", succeeded)
	}

	u := reloadUnit(t, ctx, unit.ID)
	if u.AllocatedQty != succeeded*qtyPerOrder {
		t.Fatalf("unit allocated=%d, want %d", u.AllocatedQty, succeeded*qtyPerOrder)
	}
	if u.CurrentStock+u.AllocatedQty != 10 {
		t.Fatalf("stock %d + allocated %d != 10", u.CurrentStock, u.AllocatedQty)
	}
	if u.CurrentStock < 0 {
		t.Fatalf("stock went negative: %d", u.CurrentStock)
	}

	var totalAllocated int64
	if err := db.WithContext(ctx).Model(&models.OrderLineAllocation{}).
		Where("inventory_unit_id = ?", unit.ID).
		Select("COALESCE(SUM(quantity), 0)").Scan(&totalAllocated).Error; err != nil {
		t.Fatalf("sum allocations: %v", err)
	}
	if totalAllocated != int64(succeeded*qtyPerOrder) {
		t.Fatalf("allocation rows sum to %d, want %d", totalAllocated, succeeded*qtyPerOrder)
	}
	assertLedgerMatchesStock(t, ctx, unit.ID)
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("tbeauty-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("tbeauty-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=tbeauty_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	// wait until ready
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	// Example: "127.0.0.1:49154\n"
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
