package resolver

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/devblac/indexkit/internal/catalog"
	"github.com/devblac/indexkit/internal/client"
	"github.com/devblac/indexkit/internal/config"
	"github.com/devblac/indexkit/internal/source"
)

const fixture = `
version: 1
chains:
  mainnet: {id: 1}
  optimism: {id: 10}
contracts:
  c1:
    abi: ["event Event0(bytes32 indexed arg)"]
    chain: mainnet
    address: "0x0000000000000000000000000000000000000001"
    start_block: 5
  c2:
    abi: ["event Event1()", "event Event1(bytes32)"]
    address: "0x0000000000000000000000000000000000000069"
    chain:
      mainnet: {start_block: 1}
      optimism: {address: "0x0000000000000000000000000000000000000070"}
accounts:
  a1:
    address: "0x0000000000000000000000000000000000000abc"
    chain: mainnet
blocks:
  b1:
    interval: 2
    chain: {optimism: {}}
`

var (
	mainnet  = source.Chain{Name: "mainnet", ID: 1}
	optimism = source.Chain{Name: "optimism", ID: 10}
)

type memDB struct{ data map[string][]byte }

func (m *memDB) Get(_ context.Context, ns, key string) ([]byte, bool, error) {
	v, ok := m.data[ns+"/"+key]
	return v, ok, nil
}

func (m *memDB) Put(_ context.Context, ns, key string, v []byte) error {
	m.data[ns+"/"+key] = v
	return nil
}

func (m *memDB) Delete(_ context.Context, ns, key string) error {
	delete(m.data, ns+"/"+key)
	return nil
}

func (m *memDB) PutBatch(ctx context.Context, ns string, values map[string][]byte) error {
	for k, v := range values {
		if err := m.Put(ctx, ns, k, v); err != nil {
			return err
		}
	}
	return nil
}

func (m *memDB) Ping(context.Context) error { return nil }

func newResolver(t *testing.T, pool *client.Pool) (*Resolver, *memDB) {
	t.Helper()
	cfg, err := config.Parse([]byte(fixture))
	require.NoError(t, err)
	set, err := source.Normalize(cfg)
	require.NoError(t, err)
	cat, err := catalog.Build(set, zap.NewNop())
	require.NoError(t, err)
	db := &memDB{data: map[string][]byte{}}
	r, err := New(set, cat, db, pool)
	require.NoError(t, err)
	return r, db
}

func TestSingleChainSource(t *testing.T) {
	r, db := newResolver(t, nil)

	for _, name := range []string{"c1:setup", "c1:Event0", "a1:transfer:from", "a1:transaction:to"} {
		st, err := r.Static(name)
		require.NoError(t, err, name)
		chain, ok := st.Single()
		require.True(t, ok, name)
		require.Equal(t, mainnet, chain)

		ctx, err := st.Narrow("mainnet")
		require.NoError(t, err)
		require.Equal(t, mainnet, ctx.Chain)
		require.Same(t, db, ctx.DB.(*memDB))
	}
}

func TestMultiChainSourceNarrows(t *testing.T) {
	r, _ := newResolver(t, nil)

	st, err := r.Static("c2:Event1(bytes32)")
	require.NoError(t, err)
	require.Equal(t, []source.Chain{mainnet, optimism}, st.Chains)
	_, single := st.Single()
	require.False(t, single)

	ctx, err := st.NarrowID(10)
	require.NoError(t, err)
	require.Equal(t, optimism, ctx.Chain)

	view, ok := ctx.Contract("c2")
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x70"), view.Address)

	blocks, err := r.Static("b1:block")
	require.NoError(t, err)
	_, err = blocks.Narrow("mainnet")
	require.True(t, errors.Is(err, ErrChainNotBound))
	_, err = blocks.NarrowID(1)
	require.ErrorIs(t, err, ErrChainNotBound)
}

func TestContractsIncludeEveryContract(t *testing.T) {
	r, _ := newResolver(t, nil)

	st, err := r.Static("b1:block")
	require.NoError(t, err)
	require.Len(t, st.Contracts, 2)

	c1 := st.Contracts["c1"]
	require.Equal(t, common.HexToAddress("0x01"), c1.Address)
	require.Equal(t, uint64(5), c1.StartBlock)
	require.Len(t, c1.Descriptors.Events(), 1)

	c2 := st.Contracts["c2"]
	require.Equal(t, common.Address{}, c2.Address, "per-chain addresses differ")
	require.Equal(t, uint64(0), c2.StartBlock, "per-chain start blocks differ")
	require.Equal(t, common.HexToAddress("0x69"), c2.Chains["mainnet"].Address)
	require.Equal(t, uint64(1), c2.Chains["mainnet"].StartBlock)
	require.Equal(t, common.HexToAddress("0x70"), c2.Chains["optimism"].Address)

	ctx, err := st.Narrow("optimism")
	require.NoError(t, err)
	_, ok := ctx.Contract("c1")
	require.False(t, ok, "c1 is not deployed on optimism")
}

func TestStaticIsCachedPerSource(t *testing.T) {
	r, _ := newResolver(t, nil)

	a, err := r.Static("c2:Event1()")
	require.NoError(t, err)
	b, err := r.Static("c2:setup")
	require.NoError(t, err)
	require.Same(t, a, b)
}

func TestUnknownName(t *testing.T) {
	r, _ := newResolver(t, nil)

	_, err := r.Static("c9:setup")
	var unknown *UnknownNameError
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, "c9:setup", unknown.Name)
}

func TestSingleKeyChainMapIsOneChain(t *testing.T) {
	r, _ := newResolver(t, nil)

	st, err := r.Static("b1:block")
	require.NoError(t, err)
	ch, ok := st.Single()
	require.True(t, ok)
	require.Equal(t, optimism, ch)

	_, err = st.Narrow("mainnet")
	require.ErrorIs(t, err, ErrChainNotBound)
}

func TestUnionCoversAllChains(t *testing.T) {
	r, db := newResolver(t, nil)
	require.Equal(t, []source.Chain{mainnet, optimism}, r.AllChains())

	u := r.Union()
	require.Empty(t, u.Source)
	require.Equal(t, r.AllChains(), u.Chains)
	_, single := u.Single()
	require.False(t, single)
	require.Same(t, db, u.DB)

	ctx, err := u.Narrow("optimism")
	require.NoError(t, err)
	v, ok := ctx.Contract("c2")
	require.True(t, ok)
	require.Equal(t, common.HexToAddress("0x70"), v.Address)
	_, ok = ctx.Contract("c1")
	require.False(t, ok, "c1 is not deployed on optimism")
}

func TestClientPerChain(t *testing.T) {
	pool, err := client.NewPool(context.Background(), map[string]config.Chain{
		"mainnet":  {ID: 1},
		"optimism": {ID: 10},
	}, nil)
	require.NoError(t, err)
	r, _ := newResolver(t, pool)

	st, err := r.Static("c2:setup")
	require.NoError(t, err)
	require.Same(t, pool, st.Client)
	ctx, err := st.Narrow("optimism")
	require.NoError(t, err)
	require.Equal(t, uint64(10), ctx.Client.ChainID())
}

func TestPoolMissingChainFails(t *testing.T) {
	pool, err := client.NewPool(context.Background(), map[string]config.Chain{"mainnet": {ID: 1}}, nil)
	require.NoError(t, err)

	cfg, err := config.Parse([]byte(fixture))
	require.NoError(t, err)
	set, err := source.Normalize(cfg)
	require.NoError(t, err)
	cat, err := catalog.Build(set, zap.NewNop())
	require.NoError(t, err)

	_, err = New(set, cat, &memDB{data: map[string][]byte{}}, pool)
	require.ErrorIs(t, err, client.ErrUnknownChain)
}
