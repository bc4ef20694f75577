package core

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"VammLedger/internal/event"
	"VammLedger/internal/ledger"
	fpmath "VammLedger/internal/math"
	"VammLedger/internal/observability"
	"VammLedger/internal/state"

	"github.com/rs/zerolog"
)

var errAlreadyCommitted = errors.New("command already committed")

// DefaultGlobalCheckInterval is how many sequences pass between full
// zero-sum checks of the ledger.
const DefaultGlobalCheckInterval = 1000

// Engine applies commands to markets, accounts and the insurance vault.
//
// Commands on different markets run concurrently. Each command locks what it
// touches (market, then user, then vault), mutates private copies, and
// commits them under a single commit lock that assigns the global sequence
// and extends the state hash chain. A rejected command changes nothing.
type Engine struct {
	sequence       int64
	hasher         *StateHasher
	balanceTracker *ledger.BalanceTracker
	journalGen     *ledger.JournalGenerator
	validator      *ledger.InvariantValidator

	markets  *state.MarketManager
	accounts *state.AccountManager
	oracles  *state.OracleCache
	funding  *state.FundingManager

	vaultMu sync.Mutex
	vault   state.InsuranceVault

	idempotency       *IdempotencyChecker
	sequenceValidator *SequenceValidator

	// guards sequence, hasher, balanceTracker and every install
	commitMu sync.Mutex

	clock               Clock
	custody             CollateralTransfer
	oracleMaxAge        int64
	globalCheckInterval int64
	metrics             *observability.Metrics
	log                 zerolog.Logger

	persistChan    chan<- CoreOutput
	projectionChan chan<- CoreOutput
	streamChan     chan<- CoreOutput
}

// CoreOutput is everything downstream workers need about one committed
// command.
type CoreOutput struct {
	Envelope   *event.EventEnvelope
	Batch      *ledger.Batch
	StateDelta []byte

	// committed state the command touched; nil when untouched
	Market  *state.Market
	Account *state.UserAccount
	Vault   *state.InsuranceVault
	Funding *state.FundingRecord
}

type Config struct {
	// first sequence to assign; restore overrides it
	StartSequence       int64
	IdempotencyCapacity int
	// funding records kept per market for queries
	FundingHistory int
	// oracle readings older than this many seconds block funding updates;
	// zero disables the check
	OracleMaxAge        int64
	GlobalCheckInterval int64

	Clock     Clock
	Custody   CollateralTransfer
	DBChecker DBIdempotencyChecker
	Metrics   *observability.Metrics

	PersistChan    chan<- CoreOutput
	ProjectionChan chan<- CoreOutput
	StreamChan     chan<- CoreOutput
}

func New(cfg Config) (*Engine, error) {
	if cfg.IdempotencyCapacity <= 0 {
		cfg.IdempotencyCapacity = 1_000_000
	}
	if cfg.FundingHistory <= 0 {
		cfg.FundingHistory = 256
	}
	if cfg.GlobalCheckInterval <= 0 {
		cfg.GlobalCheckInterval = DefaultGlobalCheckInterval
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Custody == nil {
		cfg.Custody = NoopCustody{}
	}
	if cfg.StartSequence <= 0 {
		cfg.StartSequence = 1
	}

	idem, err := NewIdempotencyChecker(cfg.IdempotencyCapacity, cfg.DBChecker, cfg.Metrics)
	if err != nil {
		return nil, err
	}

	tracker := ledger.NewBalanceTracker()
	return &Engine{
		sequence:            cfg.StartSequence,
		hasher:              NewStateHasher(),
		balanceTracker:      tracker,
		journalGen:          ledger.NewJournalGenerator(ledger.QuoteAssetID),
		validator:           ledger.NewInvariantValidator(tracker, ledger.QuoteAssetID),
		markets:             state.NewMarketManager(),
		accounts:            state.NewAccountManager(),
		oracles:             state.NewOracleCache(cfg.OracleMaxAge),
		funding:             state.NewFundingManager(cfg.FundingHistory),
		idempotency:         idem,
		sequenceValidator:   NewSequenceValidator(cfg.Metrics),
		clock:               cfg.Clock,
		custody:             cfg.Custody,
		oracleMaxAge:        cfg.OracleMaxAge,
		globalCheckInterval: cfg.GlobalCheckInterval,
		metrics:             cfg.Metrics,
		log:                 observability.NewLogger("engine"),
		persistChan:         cfg.PersistChan,
		projectionChan:      cfg.ProjectionChan,
		streamChan:          cfg.StreamChan,
	}, nil
}

// Process is the main processing pipeline. It returns the outcome of a
// committed command, a Result with Duplicate set for a repeat, or a coded
// error for a rejection.
func (e *Engine) Process(ctx context.Context, evt event.Event) (*Result, error) {
	evt.Stamp(e.clock.Now().Unix())
	return e.process(ctx, evt, nil)
}

// process runs one command. replay is the logged envelope when the command
// is being re-applied during recovery: custody is skipped and the outcome
// must reproduce the logged sequence and hash.
func (e *Engine) process(ctx context.Context, evt event.Event, replay *event.EventEnvelope) (*Result, error) {
	start := time.Now()
	eventType := evt.EventType().String()
	key := evt.IdempotencyKey()
	if key == "" {
		return nil, e.reject(eventType, fmt.Errorf("%s: missing idempotency key", eventType))
	}

	isDuplicate := false
	if replay == nil {
		isDuplicate = e.idempotency.IsDuplicate(ctx, eventType, key)
	}

	if upd, ok := evt.(*event.OraclePriceUpdate); ok {
		if !isDuplicate {
			if err := e.sequenceValidator.ValidatePriceSequence(upd.Market, upd.Sequence); err != nil {
				return nil, e.reject(eventType, err)
			}
		}
	} else if err := e.sequenceValidator.ValidateSequence(partitionOf(evt), evt.SourceSequence(), isDuplicate); err != nil {
		return nil, e.reject(eventType, err)
	}

	if isDuplicate {
		return &Result{EventType: evt.EventType(), Duplicate: true}, nil
	}

	tx := e.begin(evt)
	defer tx.release()

	res, err := e.dispatch(tx, evt)
	if err != nil {
		return nil, e.reject(eventType, err)
	}
	// a concurrent copy of this command may have committed while we waited
	// for locks
	if replay == nil && e.idempotency.Seen(eventType, key) {
		return &Result{EventType: evt.EventType(), Duplicate: true}, nil
	}
	if replay == nil {
		for _, call := range tx.custody {
			if err := call(ctx); err != nil {
				return nil, e.reject(eventType, err)
			}
		}
	}

	if err := e.commit(tx, res, replay); err != nil {
		if errors.Is(err, errAlreadyCommitted) {
			return &Result{EventType: evt.EventType(), Duplicate: true}, nil
		}
		return nil, e.reject(eventType, err)
	}

	if e.metrics != nil {
		e.metrics.CoreEventsApplied.WithLabelValues(eventType).Inc()
		e.metrics.CoreEventDuration.WithLabelValues(eventType).Observe(time.Since(start).Seconds())
	}
	return res, nil
}

func (e *Engine) reject(eventType string, err error) error {
	if e.metrics != nil {
		e.metrics.CoreEventsRejected.WithLabelValues(eventType, errCode(err)).Inc()
	}
	e.log.Debug().Err(err).Str("event_type", eventType).Msg("command rejected")
	return err
}

// commit installs a handled command. Everything that can fail is checked
// before the first install.
func (e *Engine) commit(tx *txn, res *Result, replay *event.EventEnvelope) error {
	e.commitMu.Lock()
	defer e.commitMu.Unlock()

	if replay == nil && e.idempotency.Seen(tx.evt.EventType().String(), tx.evt.IdempotencyKey()) {
		return errAlreadyCommitted
	}
	seq := e.sequence
	if replay != nil && replay.Sequence != seq {
		return fmt.Errorf("replay of sequence %d at engine sequence %d", replay.Sequence, seq)
	}

	batch := ledger.NewBatch(tx.evt.IdempotencyKey(), seq, tx.now)
	for _, leg := range tx.legs {
		leg(batch)
	}
	if !batch.IsEmpty() {
		if err := e.validator.ValidateBatchBalance(batch); err != nil {
			panic(fmt.Sprintf("FATAL: unbalanced batch: %v", err))
		}
	}

	if tx.newMarket {
		slot, err := e.markets.Create(tx.market)
		if err != nil {
			return err
		}
		tx.marketSlot = slot
	} else if tx.market != nil {
		if _, err := tx.market.Risk(); err != nil {
			return err
		}
	}
	if tx.newUser {
		slot, err := e.accounts.Create(tx.user)
		if err != nil {
			return err
		}
		tx.userSlot = slot
	}

	if !batch.IsEmpty() {
		if err := e.balanceTracker.ApplyBatch(batch); err != nil {
			return err
		}
	}
	if tx.market != nil && !tx.newMarket {
		if err := tx.marketSlot.Commit(tx.market); err != nil {
			// Risk() succeeded above on the same value
			panic(fmt.Sprintf("FATAL: market commit: %v", err))
		}
	}
	if tx.user != nil && !tx.newUser {
		tx.userSlot.Commit(tx.user)
	}
	if tx.vaultLocked {
		e.vault = tx.vault
	}
	for _, hook := range tx.onCommit {
		hook()
	}

	hashStart := time.Now()
	digest := e.computeStateDigest(tx, batch)
	prevHash := e.hasher.GetPrevHash()
	stateHash := e.hasher.ComputeHash(seq, digest)
	if e.metrics != nil {
		e.metrics.CoreStateHashDur.Observe(time.Since(hashStart).Seconds())
	}
	if replay != nil && replay.StateHash != stateHash {
		panic(fmt.Sprintf("FATAL: replay diverged at sequence %d", seq))
	}

	payload, err := event.Encode(tx.evt)
	if err != nil {
		panic(fmt.Sprintf("FATAL: encode committed command: %v", err))
	}
	envelope := &event.EventEnvelope{
		Sequence:       seq,
		IdempotencyKey: tx.evt.IdempotencyKey(),
		EventType:      tx.evt.EventType(),
		MarketIndex:    tx.evt.MarketIndex(),
		Timestamp:      tx.now,
		SourceSequence: tx.evt.SourceSequence(),
		Payload:        payload,
		StateHash:      stateHash,
		PrevHash:       prevHash,
	}
	e.sequence++

	if err := e.postCheckInvariants(tx, seq); err != nil {
		panic(fmt.Sprintf("FATAL: invariant violated: %v", err))
	}

	res.Sequence = seq
	res.StateHash = stateHash
	e.idempotency.MarkProcessed(tx.evt.EventType().String(), tx.evt.IdempotencyKey())

	output := CoreOutput{
		Envelope:   envelope,
		Batch:      batch,
		StateDelta: digest,
		Funding:    res.Funding,
	}
	if tx.market != nil {
		output.Market = tx.market
	}
	if tx.user != nil {
		output.Account = tx.user
	}
	if tx.vaultLocked {
		v := tx.vault
		output.Vault = &v
	}
	if replay == nil {
		e.emit(output)
	}
	e.observe(output)
	return nil
}

// emit hands a committed command to downstream workers. Persistence blocks
// so no committed command is lost; projections and streams drop when full
// and catch up from the event log.
func (e *Engine) emit(output CoreOutput) {
	if e.persistChan != nil {
		select {
		case e.persistChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PersistBackpressure.Inc()
			}
			e.persistChan <- output
		}
	}
	if e.projectionChan != nil {
		select {
		case e.projectionChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.ProjectionDrops.WithLabelValues("core").Inc()
			}
		}
	}
	if e.streamChan != nil {
		select {
		case e.streamChan <- output:
		default:
			if e.metrics != nil {
				e.metrics.PublishDrops.Inc()
			}
		}
	}
}

func (e *Engine) observe(output CoreOutput) {
	if e.metrics == nil {
		return
	}
	e.metrics.CoreSequence.Set(float64(output.Envelope.Sequence))
	for _, j := range output.Batch.Journals {
		e.metrics.CoreJournals.WithLabelValues(j.JournalType.String()).Inc()
	}
	if m := output.Market; m != nil {
		label := fmt.Sprintf("%d", m.MarketIndex)
		a := &m.AMM
		e.metrics.AmmBaseReserve.WithLabelValues(label).Set(fpmath.ToDecimal(a.BaseAssetReserve, fpmath.AmmReservePrecision).InexactFloat64())
		e.metrics.AmmQuoteReserve.WithLabelValues(label).Set(fpmath.ToDecimal(a.QuoteAssetReserve, fpmath.AmmReservePrecision).InexactFloat64())
		e.metrics.AmmSqrtK.WithLabelValues(label).Set(fpmath.ToDecimal(a.SqrtK, fpmath.AmmReservePrecision).InexactFloat64())
		e.metrics.AmmLpShares.WithLabelValues(label).Set(fpmath.ToDecimal(a.UserLpShares, fpmath.AmmReservePrecision).InexactFloat64())
		e.metrics.AmmFeePool.WithLabelValues(label).Set(fpmath.ToDecimal(a.TotalFeeMinusDistributions, fpmath.QuotePrecision).InexactFloat64())
		e.metrics.AmmNetBase.WithLabelValues(label).Set(fpmath.ToDecimal(a.NetBaseAssetAmount, fpmath.AmmReservePrecision).InexactFloat64())
		if price, err := a.MarkPrice(); err == nil {
			e.metrics.AmmMarkPrice.WithLabelValues(label).Set(fpmath.ToDecimal(price, fpmath.MarkPricePrecision).InexactFloat64())
		}
	}
	if f := output.Funding; f != nil {
		label := fmt.Sprintf("%d", f.MarketIndex)
		e.metrics.FundingUpdates.WithLabelValues(label, fmt.Sprintf("%t", f.Capped)).Inc()
		e.metrics.FundingRate.WithLabelValues(label).Set(fpmath.ToDecimal(f.Rate, fpmath.FundingRatePrecision).InexactFloat64())
	}
	if v := output.Vault; v != nil {
		e.metrics.InsuranceVaultBalance.Set(fpmath.ToDecimal(v.Balance, fpmath.QuotePrecision).InexactFloat64())
	}
}

// partitionOf determines partition key for sequence validation
func partitionOf(evt event.Event) string {
	if mi := evt.MarketIndex(); mi != nil {
		return fmt.Sprintf("market:%d", *mi)
	}
	return "global"
}

// computeStateDigest creates canonical bytes for the state hash: the
// committed market, user and vault the command touched, then every ledger
// account its journals moved.
func (e *Engine) computeStateDigest(tx *txn, batch *ledger.Batch) []byte {
	digest := make([]byte, 0, 1024)
	digest = append(digest, byte(tx.evt.EventType()))
	if tx.market != nil {
		digest = append(digest, tx.market.CanonicalBytes()...)
	}
	if tx.user != nil {
		digest = append(digest, tx.user.CanonicalBytes()...)
	}
	if tx.vaultLocked {
		digest = append(digest, tx.vault.CanonicalBytes()...)
	}

	affected := make(map[ledger.AccountKey]bool)
	for _, j := range batch.Journals {
		affected[j.DebitAccount] = true
		affected[j.CreditAccount] = true
	}
	accounts := make([]ledger.AccountKey, 0, len(affected))
	for key := range affected {
		accounts = append(accounts, key)
	}
	sort.Slice(accounts, func(i, j int) bool {
		return accounts[i].AccountPath() < accounts[j].AccountPath()
	})
	for _, key := range accounts {
		path := key.AccountPath()
		digest = append(digest, byte(len(path)))
		digest = append(digest, []byte(path)...)
		digest = appendInt64LE(digest, e.balanceTracker.GetBalance(key))
	}
	return digest
}

func appendInt64LE(buf []byte, v int64) []byte {
	return append(buf,
		byte(v),
		byte(v>>8),
		byte(v>>16),
		byte(v>>24),
		byte(v>>32),
		byte(v>>40),
		byte(v>>48),
		byte(v>>56),
	)
}

// postCheckInvariants verifies the ledger mirrors the state the command
// committed.
func (e *Engine) postCheckInvariants(tx *txn, seq int64) error {
	if tx.user != nil {
		if err := e.validator.ValidateUserCollateral(tx.user.UserID, tx.user.CollateralValue()); err != nil {
			return err
		}
	}
	if tx.market != nil {
		if err := e.validator.ValidatePnlPool(tx.market.MarketIndex, tx.market.PnlPool); err != nil {
			return err
		}
	}
	if tx.vaultLocked {
		if err := e.validator.ValidateInsuranceVault(tx.vault.Balance); err != nil {
			return err
		}
	}
	if seq%e.globalCheckInterval == 0 {
		if err := e.validator.ValidateGlobalBalance(); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) dispatch(tx *txn, evt event.Event) (*Result, error) {
	switch ev := evt.(type) {
	case *event.InitializeUser:
		return e.handleInitializeUser(tx, ev)
	case *event.InitializeMarket:
		return e.handleInitializeMarket(tx, ev)
	case *event.UpdateMarketParams:
		return e.handleUpdateMarketParams(tx, ev)
	case *event.Deposit:
		return e.handleDeposit(tx, ev)
	case *event.Withdraw:
		return e.handleWithdraw(tx, ev)
	case *event.OpenPosition:
		return e.handleOpenPosition(tx, ev)
	case *event.ClosePosition:
		return e.handleClosePosition(tx, ev)
	case *event.PlaceOrder:
		return e.handlePlaceOrder(tx, ev)
	case *event.CancelOrder:
		return e.handleCancelOrder(tx, ev)
	case *event.FillOrder:
		return e.handleFillOrder(tx, ev)
	case *event.AddLiquidity:
		return e.handleAddLiquidity(tx, ev)
	case *event.RemoveLiquidity:
		return e.handleRemoveLiquidity(tx, ev)
	case *event.SettleLP:
		return e.handleSettleLP(tx, ev)
	case *event.SettlePnl:
		return e.handleSettlePnl(tx, ev)
	case *event.OraclePriceUpdate:
		return e.handleOraclePriceUpdate(tx, ev)
	case *event.UpdateFundingRate:
		return e.handleUpdateFundingRate(tx, ev)
	case *event.RepegCurve:
		return e.handleRepegCurve(tx, ev)
	case *event.UpdateK:
		return e.handleUpdateK(tx, ev)
	case *event.WithdrawFromMarketToInsuranceVault:
		return e.handleWithdrawFromMarketToInsuranceVault(tx, ev)
	case *event.WithdrawFromInsuranceVault:
		return e.handleWithdrawFromInsuranceVault(tx, ev)
	case *event.WithdrawFromInsuranceVaultToMarket:
		return e.handleWithdrawFromInsuranceVaultToMarket(tx, ev)
	default:
		return nil, fmt.Errorf("unknown event type: %T", evt)
	}
}
