// Command oms runs one order-management-system process: it loads a
// config.json describing an instrument catalog and a set of exchange
// subscriptions, wires up order books, quoting instances, and an
// optional hedger per instrument, and serves the control protocol until
// terminated.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/web3guy0/quantoms/internal/book"
	"github.com/web3guy0/quantoms/internal/config"
	"github.com/web3guy0/quantoms/internal/control"
	"github.com/web3guy0/quantoms/internal/fairvalue"
	"github.com/web3guy0/quantoms/internal/feed"
	"github.com/web3guy0/quantoms/internal/gateway"
	"github.com/web3guy0/quantoms/internal/hedger"
	"github.com/web3guy0/quantoms/internal/instrument"
	"github.com/web3guy0/quantoms/internal/logging"
	"github.com/web3guy0/quantoms/internal/marketdata"
	"github.com/web3guy0/quantoms/internal/order"
	"github.com/web3guy0/quantoms/internal/persistence"
	"github.com/web3guy0/quantoms/internal/position"
	"github.com/web3guy0/quantoms/internal/quoting"
	"github.com/web3guy0/quantoms/internal/router"
	"github.com/web3guy0/quantoms/pkg/ticks"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("oms: exiting")
	}
}

func run() error {
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg("oms: no .env file found, using environment variables as-is")
	}

	configPath := "config.json"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("oms: %w", err)
	}

	logging.Init(cfg.LogLevel, cfg.LogPretty)
	log.Info().Str("oms_identifier", cfg.OMSIdentifier).Msg("oms: starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	a.alerter.NotifyStartup(cfg.OMSIdentifier)
	return a.Run(ctx)
}

// app holds every long-lived collaborator wired from config, so Run and
// Close have one place to reach them from.
type app struct {
	cfg *config.Config

	registry    *instrument.Registry
	distributor *marketdata.Distributor
	rtr         *router.Router
	positions   *position.Book
	limiter     *position.Limiter
	fillStore   *persistence.FillStore
	control     *control.Server
	alerter     *control.Alerter
	gw          order.Gateway

	feeds   []feed.Adapter
	hedgers []*hedger.Hedger
	quoters []*quoting.QuotingInstance

	// books is every subscribed instrument's sink, keyed for lookup by
	// wireQuotingInstances and wireHedger.
	books map[instrument.ID]marketdata.BookSink
}

func newApp(cfg *config.Config) (*app, error) {
	registry := instrument.NewRegistry()
	csvFile, err := os.Open(cfg.InstrumentCSVPath())
	if err != nil {
		return nil, fmt.Errorf("oms: opening instrument catalog: %w", err)
	}
	defer csvFile.Close()
	if err := instrument.LoadCSV(csvFile, registry); err != nil {
		return nil, fmt.Errorf("oms: loading instrument catalog: %w", err)
	}

	fillStore, err := persistence.Open(cfg.Persistence.DSN)
	if err != nil {
		return nil, fmt.Errorf("oms: opening fill store: %w", err)
	}

	rtr := router.New()
	distributor := marketdata.New()
	positions := position.NewBook(registry)
	limiter := position.NewLimiter()
	gw := gateway.New(gateway.DefaultConfig(), rtr)
	alerter := control.NewAlerter(cfg.TelegramBotToken, cfg.TelegramChatID)
	ctrl := control.New(cfg.Control.ListenAddr, cfg.OMSIdentifier, rtr, fillStore)

	a := &app{
		cfg:         cfg,
		registry:    registry,
		distributor: distributor,
		rtr:         rtr,
		positions:   positions,
		limiter:     limiter,
		fillStore:   fillStore,
		control:     ctrl,
		alerter:     alerter,
		gw:          gw,
		books:       make(map[instrument.ID]marketdata.BookSink),
	}

	if err := a.wireSubscriptions(); err != nil {
		return nil, err
	}
	if err := a.wireQuotingInstances(); err != nil {
		return nil, err
	}

	rtr.OnOrderFilled(a.onOrderFilled)
	return a, nil
}

// bookFor picks the L2 book for an instrument carrying a full-depth
// feed, and the degenerate L1 book otherwise. Every configured feed in
// this deployment speaks full L2, so a BestOrderBook is only ever used
// for a paper-only instrument with no execution.feed_url.
func bookFor(inst instrument.Instrument, hasFeed bool) marketdata.BookSink {
	if hasFeed {
		return book.New(inst)
	}
	return book.NewBest(inst)
}

// wireSubscriptions builds one book per configured symbol and, when a
// feed_url is present, one WebSocketAdapter feeding it through the
// distributor.
func (a *app) wireSubscriptions() error {
	for _, sub := range a.cfg.Subscriptions {
		hasFeed := sub.Execution.FeedURL != ""

		var adapter *feed.WebSocketAdapter
		if hasFeed {
			adapter = feed.NewWebSocketAdapter(sub.Exchange, sub.Execution.FeedURL, a.registry)
			adapter.OnError(func(err error) {
				log.Warn().Str("exchange", sub.Exchange).Err(err).Msg("oms: feed error")
			})
			adapter.OnMarketData(func(md feed.MarketDataReceived) {
				a.distributor.Publish(md.Event)
			})
			adapter.OnConnectionStateChanged(func(cs feed.ConnectionState) {
				log.Info().
					Str("exchange", cs.Exchange).
					Bool("connected", cs.IsConnected).
					Str("reason", cs.Reason).
					Msg("oms: feed connection state changed")
				a.onFeedConnectionState(cs)
			})
			a.feeds = append(a.feeds, adapter)
		}

		for _, symbol := range sub.Symbols {
			inst, ok := a.registry.BySymbol(symbol)
			if !ok {
				return fmt.Errorf("oms: subscription references unknown symbol %q", symbol)
			}
			sink := bookFor(inst, hasFeed)
			a.books[inst.ID] = sink
			a.distributor.RegisterBook(inst.ID, sink)
		}

		if adapter != nil {
			if err := adapter.Subscribe(sub.Exchange, sub.ProductType, sub.Symbols); err != nil {
				return fmt.Errorf("oms: subscribe %s: %w", sub.Exchange, err)
			}
		}
	}
	return nil
}

// wireQuotingInstances builds a QuotingInstance per configured symbol,
// subscribing its fair-value provider to the book's market data so
// every update recomputes and re-quotes.
func (a *app) wireQuotingInstances() error {
	for _, qc := range a.cfg.Quoting {
		inst, ok := a.registry.BySymbol(qc.Symbol)
		if !ok {
			return fmt.Errorf("oms: quoting config references unknown symbol %q", qc.Symbol)
		}

		reader, err := a.bookReaderFor(inst.ID)
		if err != nil {
			return err
		}

		if !qc.MaxPosition.IsZero() {
			a.limiter.SetMaxPosition(inst.ID, ticks.QuantityFromDecimal(qc.MaxPosition))
		}

		strategy := parseStrategy(qc.QuoterType)
		params := quoting.Parameters{
			Symbol:       qc.Symbol,
			BidSpreadBps: qc.BidSpreadBps.IntPart(),
			AskSpreadBps: qc.AskSpreadBps.IntPart(),
			SkewBps:      qc.SkewBps.IntPart(),
			Size:         ticks.QuantityFromDecimal(qc.Size),
			PostOnly:     qc.PostOnly,
			Depth:        qc.Depth,
			QuoterType:   strategy,
		}

		provider := fairvalue.New(fairvalue.Midp, inst.ID)
		qi := quoting.New(inst, params, provider, a.gw, a.rtr, a.limiter, a.positions, reader)

		a.subscribeFairValue(inst.ID, provider, reader, qi)
		a.control.RegisterInstance(qi)
		a.quoters = append(a.quoters, qi)

		if qc.HedgeSymbol != "" {
			if err := a.wireHedger(inst, qc, strategy); err != nil {
				return err
			}
		}
	}
	return nil
}

// subscribeFairValue registers a distributor callback that recomputes
// the provider against reader on every book event for id and, when the
// value moved by at least a tick, drives the quoting instance.
func (a *app) subscribeFairValue(id instrument.ID, provider *fairvalue.Provider, reader fairvalue.BookReader, qi *quoting.QuotingInstance) {
	key := fmt.Sprintf("quoting_%d", id)
	a.distributor.SubscribeOrderBook(id, key, func(e book.Event) {
		u, ok := provider.Compute(reader)
		if !ok {
			return
		}
		qi.OnFairValueUpdate(context.Background(), u, e.TimestampUs)
	})
}

func (a *app) bookReaderFor(id instrument.ID) (order.BookReader, error) {
	sink, ok := a.books[id]
	if !ok {
		return nil, fmt.Errorf("oms: instrument %d has no registered book", id)
	}
	reader, ok := sink.(order.BookReader)
	if !ok {
		return nil, fmt.Errorf("oms: book for instrument %d does not expose best bid/ask", id)
	}
	return reader, nil
}

func (a *app) wireHedger(quotingInst instrument.Instrument, qc config.QuotingConfig, strategy order.Strategy) error {
	hedgeInst, ok := a.registry.BySymbol(qc.HedgeSymbol)
	if !ok {
		return fmt.Errorf("oms: hedge_symbol references unknown symbol %q", qc.HedgeSymbol)
	}
	hedgeReader, err := a.bookReaderFor(hedgeInst.ID)
	if err != nil {
		return fmt.Errorf("oms: hedge leg for %q: %w", qc.HedgeSymbol, err)
	}

	fx := hedger.NewFXService(hedgeReader)
	sliceSize := ticks.QuantityFromDecimal(qc.HedgeSliceSize)
	if sliceSize == 0 {
		sliceSize = ticks.QuantityFromDecimal(qc.Size)
	}

	h := hedger.New(
		quotingInst, hedgeInst,
		hedger.Parameters{QuoterType: strategy, SliceSize: sliceSize},
		fx, a.gw, a.rtr, hedgeReader,
	)
	if !h.Active() {
		a.alerter.NotifyHedgerDeactivated(a.cfg.OMSIdentifier, quotingInst.Symbol,
			fmt.Errorf("activation preconditions not met for hedge leg %s", qc.HedgeSymbol))
	}

	key := fmt.Sprintf("hedge_%d_%d", quotingInst.ID, hedgeInst.ID)
	a.distributor.SubscribeOrderBook(hedgeInst.ID, key, func(e book.Event) {
		h.OnHedgeBookUpdate(context.Background())
	})

	a.hedgers = append(a.hedgers, h)
	return nil
}

// parseStrategy maps a config.json quoter_type string onto a
// order.Strategy, defaulting to OppositeFirst for an unrecognized or
// empty value.
func parseStrategy(quoterType string) order.Strategy {
	if quoterType == "first_follow" {
		return order.FirstFollow
	}
	return order.OppositeFirst
}

// onFeedConnectionState pauses or resumes every hedger whose hedge leg
// lives on the exchange that just changed state.
func (a *app) onFeedConnectionState(cs feed.ConnectionState) {
	for _, h := range a.hedgers {
		hedgeInst, ok := a.registry.ByID(h.HedgeInstrumentID())
		if !ok || hedgeInst.SourceExchange != cs.Exchange {
			continue
		}
		if cs.IsConnected {
			h.Reactivate(context.Background())
		} else {
			h.Deactivate()
		}
	}
}

func (a *app) onOrderFilled(ev router.FilledEvent) {
	a.fillStore.Append(ev.Fill)
	if _, err := a.positions.ApplyFill(ev.Fill); err != nil {
		log.Warn().Err(err).Msg("oms: position update failed")
	}
	for _, h := range a.hedgers {
		switch ev.Fill.InstrumentID {
		case h.QuotingInstrumentID():
			h.OnQuotingFill(context.Background(), ev.Fill)
		case h.HedgeInstrumentID():
			h.OnHedgingFill(ev.Fill)
		}
	}
}

// Run starts every background goroutine and blocks until ctx is
// cancelled or the control server exits, then performs a best-effort
// bulk cancel of every order still registered before returning.
func (a *app) Run(ctx context.Context) error {
	go a.distributor.Run()
	for _, f := range a.feeds {
		if err := f.Connect(ctx); err != nil {
			log.Error().Err(err).Msg("oms: feed connect failed")
		}
	}

	controlErrCh := make(chan error, 1)
	go func() {
		defer recoverFatal(a, "control server")
		controlErrCh <- a.control.Start(ctx)
	}()

	select {
	case <-ctx.Done():
	case err := <-controlErrCh:
		if err != nil {
			a.alerter.NotifyFatal(a.cfg.OMSIdentifier, err)
		}
	}

	a.bulkCancel()
	return nil
}

// orderIDs is the surface bulkCancel needs from a registered
// router.Routable to build a cancel request. *order.Order satisfies it
// (AlgoOrder embeds *Order); router.Routable itself only exposes enough
// to route reports.
type orderIDs interface {
	ClientOrderID() uint64
	ExchangeOrderID() string
}

func (a *app) bulkCancel() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var reqs []order.CancelOrderRequest
	for _, ro := range a.rtr.ActiveOrders() {
		ids, ok := ro.(orderIDs)
		if !ok {
			continue
		}
		reqs = append(reqs, order.CancelOrderRequest{
			ClientOrderID:   ids.ClientOrderID(),
			ExchangeOrderID: ids.ExchangeOrderID(),
		})
	}
	if len(reqs) == 0 {
		return
	}

	for _, res := range a.gw.BulkCancelOrders(shutdownCtx, order.BulkCancelOrdersRequest{Requests: reqs}) {
		if !res.Success {
			log.Warn().Uint64("client_order_id", res.ClientOrderID).Err(res.Err).Msg("oms: shutdown cancel failed")
		}
	}
}

func (a *app) Close() {
	a.distributor.Stop()
	for _, f := range a.feeds {
		f.Disconnect()
	}
	a.fillStore.Close()
}

// recoverFatal implements the Fatal error class: an unhandled panic in
// a long-lived goroutine is logged, triggers a best-effort bulk cancel,
// and is reported via Telegram before the goroutine unwinds.
func recoverFatal(a *app, goroutineName string) {
	if r := recover(); r != nil {
		err := fmt.Errorf("panic in %s: %v", goroutineName, r)
		log.Error().Interface("panic", r).Str("goroutine", goroutineName).Msg("oms: fatal error, unwinding")
		a.alerter.NotifyFatal(a.cfg.OMSIdentifier, err)
		a.bulkCancel()
	}
}
