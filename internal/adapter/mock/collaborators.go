package mock

import (
	"context"
	"fmt"

	"cosmossdk.io/math"
	"github.com/google/uuid"

	"FarmLedger/internal/asset"
)

// Generator stakes liquidity tokens for a single staker population and
// accrues settable pending rewards. Bond, Unbond, and ClaimRewards all
// flush pending rewards, mirroring the real generator's implicit withdraw.
type Generator struct {
	bonded  map[uuid.UUID]math.Int
	pending map[uuid.UUID]asset.List
}

func NewGenerator() *Generator {
	return &Generator{
		bonded:  make(map[uuid.UUID]math.Int),
		pending: make(map[uuid.UUID]asset.List),
	}
}

// Staker identifies the engine at the generator. The mock assumes a single
// liquidity token, so the token argument is only checked for non-emptiness.
var generatorStaker = uuid.MustParse("00000000-0000-0000-0000-00000000fa01")

// EngineStaker returns the account under which the engine stakes.
func EngineStaker() uuid.UUID { return generatorStaker }

// AccrueReward adds a pending reward for the engine staker.
func (g *Generator) AccrueReward(a asset.Asset) {
	l := g.pending[generatorStaker]
	l.Add(a)
	g.pending[generatorStaker] = l
}

func (g *Generator) bondedOf(staker uuid.UUID) math.Int {
	if b, ok := g.bonded[staker]; ok {
		return b
	}
	return math.ZeroInt()
}

func (g *Generator) Bond(ctx context.Context, liquidityToken asset.Info, amount math.Int) error {
	if liquidityToken.IsEmpty() {
		return fmt.Errorf("bond: empty liquidity token")
	}
	g.bonded[generatorStaker] = g.bondedOf(generatorStaker).Add(amount)
	delete(g.pending, generatorStaker)
	return nil
}

func (g *Generator) Unbond(ctx context.Context, liquidityToken asset.Info, amount math.Int) error {
	have := g.bondedOf(generatorStaker)
	if have.LT(amount) {
		return fmt.Errorf("unbond %s exceeds bonded %s", amount, have)
	}
	g.bonded[generatorStaker] = have.Sub(amount)
	delete(g.pending, generatorStaker)
	return nil
}

func (g *Generator) ClaimRewards(ctx context.Context, liquidityToken asset.Info) error {
	delete(g.pending, generatorStaker)
	return nil
}

func (g *Generator) QueryBonded(ctx context.Context, staker uuid.UUID, liquidityToken asset.Info) (math.Int, error) {
	return g.bondedOf(staker), nil
}

func (g *Generator) QueryRewards(ctx context.Context, staker uuid.UUID, liquidityToken asset.Info) ([]asset.Asset, error) {
	return g.pending[staker].Clone(), nil
}

// MoneyMarket tracks one debt balance per borrower. Interest accrual is out
// of scope; tests mutate the balance directly where drift matters.
type MoneyMarket struct {
	debts map[uuid.UUID]math.Int
}

func NewMoneyMarket() *MoneyMarket {
	return &MoneyMarket{debts: make(map[uuid.UUID]math.Int)}
}

func (m *MoneyMarket) debtOf(borrower uuid.UUID) math.Int {
	if d, ok := m.debts[borrower]; ok {
		return d
	}
	return math.ZeroInt()
}

// SetDebt overrides a borrower's debt (test hook).
func (m *MoneyMarket) SetDebt(borrower uuid.UUID, amount math.Int) {
	m.debts[borrower] = amount
}

func (m *MoneyMarket) Borrow(ctx context.Context, a asset.Asset) error {
	m.debts[generatorStaker] = m.debtOf(generatorStaker).Add(a.Amount)
	return nil
}

func (m *MoneyMarket) Repay(ctx context.Context, a asset.Asset) error {
	have := m.debtOf(generatorStaker)
	if have.LT(a.Amount) {
		return fmt.Errorf("repay %s exceeds debt %s", a.Amount, have)
	}
	m.debts[generatorStaker] = have.Sub(a.Amount)
	return nil
}

func (m *MoneyMarket) QueryDebt(ctx context.Context, borrower uuid.UUID, info asset.Info) (math.Int, error) {
	return m.debtOf(borrower), nil
}

// Oracle serves settable prices keyed by asset label.
type Oracle struct {
	prices map[string]math.LegacyDec
}

func NewOracle() *Oracle {
	return &Oracle{prices: make(map[string]math.LegacyDec)}
}

func (o *Oracle) SetPrice(info asset.Info, price math.LegacyDec) {
	o.prices[info.Label()] = price
}

func (o *Oracle) QueryPrice(ctx context.Context, info asset.Info) (math.LegacyDec, error) {
	p, ok := o.prices[info.Label()]
	if !ok {
		return math.LegacyDec{}, fmt.Errorf("no price for %s", info.Label())
	}
	return p, nil
}

// Transfer records one outbound bank send.
type Transfer struct {
	Recipient uuid.UUID
	Asset     asset.Asset
}

// Bank records transfers instead of moving real balances.
type Bank struct {
	Sent   []Transfer
	Pulled []Transfer
}

func NewBank() *Bank {
	return &Bank{}
}

func (b *Bank) Send(ctx context.Context, recipient uuid.UUID, a asset.Asset) error {
	b.Sent = append(b.Sent, Transfer{Recipient: recipient, Asset: a})
	return nil
}

func (b *Bank) TransferFrom(ctx context.Context, owner uuid.UUID, a asset.Asset) error {
	b.Pulled = append(b.Pulled, Transfer{Recipient: owner, Asset: a})
	return nil
}

// SentTo sums deliveries of one asset to one recipient.
func (b *Bank) SentTo(recipient uuid.UUID, info asset.Info) math.Int {
	total := math.ZeroInt()
	for _, t := range b.Sent {
		if t.Recipient == recipient && t.Asset.Info.Equal(info) {
			total = total.Add(t.Asset.Amount)
		}
	}
	return total
}
