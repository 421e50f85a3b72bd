package router

import "testing"

type fakeOrder struct {
	clientID uint64
	outcome  ReportOutcome
	received []OrderStatusReport
}

func (f *fakeOrder) ClientOrderID() uint64 { return f.clientID }

func (f *fakeOrder) OnStatusReportReceived(r OrderStatusReport) ReportOutcome {
	f.received = append(f.received, r)
	return f.outcome
}

func TestRouteReportByClientID(t *testing.T) {
	r := New()
	o := &fakeOrder{clientID: 1, outcome: ReportOutcome{StatusChanged: true, NewStatus: StatusNew}}
	r.RegisterOrder(o)

	var got []StatusChangedEvent
	r.OnStatusChanged(func(e StatusChangedEvent) { got = append(got, e) })

	if err := r.RouteReport(OrderStatusReport{ClientOrderID: 1, Status: StatusNew}); err != nil {
		t.Fatalf("RouteReport: %v", err)
	}
	if len(o.received) != 1 {
		t.Fatalf("order did not receive the report")
	}
	if len(got) != 1 || got[0].Status != StatusNew {
		t.Fatalf("status changed event = %+v", got)
	}
}

func TestRouteReportByExchangeIDAfterMapping(t *testing.T) {
	r := New()
	o := &fakeOrder{clientID: 7}
	r.RegisterOrder(o)
	r.MapExchangeIDToClientID("EX-123", 7)

	if err := r.RouteReport(OrderStatusReport{ExchangeOrderID: "EX-123"}); err != nil {
		t.Fatalf("RouteReport: %v", err)
	}
	if len(o.received) != 1 {
		t.Fatalf("expected report routed via exchange id mapping")
	}
}

func TestRouteReportUnknownIsDropped(t *testing.T) {
	r := New()
	err := r.RouteReport(OrderStatusReport{ClientOrderID: 999})
	if err == nil {
		t.Fatal("expected an error routing an unregistered order")
	}
}

func TestRouteReportFillEmitsFilledEvent(t *testing.T) {
	r := New()
	fill := Fill{ExchangeOrderID: "EX-1", ExecID: "X1", Quantity: 1}
	o := &fakeOrder{clientID: 2, outcome: ReportOutcome{Fill: &fill}}
	r.RegisterOrder(o)

	var got []FilledEvent
	r.OnOrderFilled(func(e FilledEvent) { got = append(got, e) })

	r.RouteReport(OrderStatusReport{ClientOrderID: 2})
	if len(got) != 1 || got[0].Fill.ExecID != "X1" {
		t.Fatalf("filled event = %+v", got)
	}
}

func TestTerminalOutcomeDeregisters(t *testing.T) {
	r := New()
	o := &fakeOrder{clientID: 3, outcome: ReportOutcome{Terminal: true}}
	r.RegisterOrder(o)
	r.MapExchangeIDToClientID("EX-3", 3)

	r.RouteReport(OrderStatusReport{ClientOrderID: 3, Status: StatusFilled})

	if err := r.RouteReport(OrderStatusReport{ClientOrderID: 3}); err == nil {
		t.Fatal("expected order to be deregistered after a terminal outcome")
	}
	if err := r.RouteReport(OrderStatusReport{ExchangeOrderID: "EX-3"}); err == nil {
		t.Fatal("expected exchange id mapping to be cleared on deregister")
	}
}

func TestOrderStatusTerminal(t *testing.T) {
	terminal := []OrderStatus{StatusFilled, StatusCancelled, StatusRejected}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	nonTerminal := []OrderStatus{StatusPending, StatusNew, StatusPartiallyFilled, StatusReplaceRequest, StatusCancelRequest}
	for _, s := range nonTerminal {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
