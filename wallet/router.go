package wallet

import (
	"errors"
	"math/big"
)

// ErrNoRoute marks a swap between tokens the router has no pool for.
var ErrNoRoute = errors.New("wallet router: no route for pair")

var routerBasisPoints = big.NewInt(10_000)

// Router prices and executes single swaps. Two interchangeable backends
// exist: a constant-product router and a fee-tiered fixed-price router. The
// wallet service takes whichever is injected.
type Router interface {
	Name() string
	Swap(tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error)
}

func pairKey(a, b string) string {
	if a < b {
		return a + "/" + b
	}
	return b + "/" + a
}

// V2Router is a constant-product router with single-hop routes and a flat
// 30 bps fee per swap.
type V2Router struct {
	pools map[string]*v2Pool
}

type v2Pool struct {
	tokenA   string
	reserveA *big.Int
	reserveB *big.Int
}

const v2FeeBps = 30

func NewV2Router() *V2Router {
	return &V2Router{pools: make(map[string]*v2Pool)}
}

// AddPool registers a pool for the token pair with the given reserves.
func (r *V2Router) AddPool(tokenA, tokenB string, reserveA, reserveB *big.Int) {
	if tokenA > tokenB {
		tokenA, tokenB = tokenB, tokenA
		reserveA, reserveB = reserveB, reserveA
	}
	r.pools[pairKey(tokenA, tokenB)] = &v2Pool{
		tokenA:   tokenA,
		reserveA: new(big.Int).Set(reserveA),
		reserveB: new(big.Int).Set(reserveB),
	}
}

func (r *V2Router) Name() string { return "v2" }

// Swap executes against the pool, moving the reserves.
func (r *V2Router) Swap(tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	pool, ok := r.pools[pairKey(tokenIn, tokenOut)]
	if !ok {
		return nil, ErrNoRoute
	}
	reserveIn, reserveOut := pool.reserveA, pool.reserveB
	if tokenIn != pool.tokenA {
		reserveIn, reserveOut = reserveOut, reserveIn
	}

	inWithFee := new(big.Int).Mul(amountIn, big.NewInt(10_000-v2FeeBps))
	num := new(big.Int).Mul(reserveOut, inWithFee)
	den := new(big.Int).Mul(reserveIn, routerBasisPoints)
	den.Add(den, inWithFee)
	out := num.Quo(num, den)

	reserveIn.Add(reserveIn, amountIn)
	reserveOut.Sub(reserveOut, out)
	return out, nil
}

// V4Router is a fee-tiered fixed-price router: each pool carries its own fee
// tier and a quoted price, the fee is charged on the way in.
type V4Router struct {
	pools map[string]*v4Pool
}

type v4Pool struct {
	tokenA   string
	feeBps   uint64
	priceNum *big.Int
	priceDen *big.Int
}

func NewV4Router() *V4Router {
	return &V4Router{pools: make(map[string]*v4Pool)}
}

// AddPool registers a pool quoting priceNum/priceDen units of tokenB per unit
// of tokenA at the given fee tier.
func (r *V4Router) AddPool(tokenA, tokenB string, feeBps uint64, priceNum, priceDen *big.Int) {
	if tokenA > tokenB {
		tokenA, tokenB = tokenB, tokenA
		priceNum, priceDen = priceDen, priceNum
	}
	r.pools[pairKey(tokenA, tokenB)] = &v4Pool{
		tokenA:   tokenA,
		feeBps:   feeBps,
		priceNum: new(big.Int).Set(priceNum),
		priceDen: new(big.Int).Set(priceDen),
	}
}

func (r *V4Router) Name() string { return "v4" }

func (r *V4Router) Swap(tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	pool, ok := r.pools[pairKey(tokenIn, tokenOut)]
	if !ok {
		return nil, ErrNoRoute
	}
	num, den := pool.priceNum, pool.priceDen
	if tokenIn != pool.tokenA {
		num, den = den, num
	}
	fee := new(big.Int).Mul(amountIn, new(big.Int).SetUint64(pool.feeBps))
	fee.Quo(fee, routerBasisPoints)
	effective := new(big.Int).Sub(amountIn, fee)
	out := new(big.Int).Mul(effective, num)
	return out.Quo(out, den), nil
}
