package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	loansCreated     prometheus.Counter
	loansRepaid      prometheus.Counter
	loansLiquidated  prometheus.Counter
	vaultDeposits    prometheus.Counter
	vaultWithdrawals prometheus.Counter
	poolTotalAssets  prometheus.Gauge
	poolLiquidity    prometheus.Gauge
	protocolFees     prometheus.Gauge
	rpcRequests      *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			loansCreated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marginvault_loans_created_total",
				Help: "Count of leveraged positions opened.",
			}),
			loansRepaid: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marginvault_loans_repaid_total",
				Help: "Count of positions settled by voluntary repayment.",
			}),
			loansLiquidated: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marginvault_loans_liquidated_total",
				Help: "Count of positions force-closed after the due date.",
			}),
			vaultDeposits: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marginvault_vault_deposits_total",
				Help: "Count of vault deposits.",
			}),
			vaultWithdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "marginvault_vault_withdrawals_total",
				Help: "Count of vault withdrawals and redemptions.",
			}),
			poolTotalAssets: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "marginvault_pool_total_assets",
				Help: "Pool assets including allocated principal and accrued yield.",
			}),
			poolLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "marginvault_pool_available_liquidity",
				Help: "Settlement assets physically on hand in the pool.",
			}),
			protocolFees: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "marginvault_protocol_fees",
				Help: "Interest residue currently held by the orchestrator.",
			}),
			rpcRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "marginvault_rpc_requests_total",
				Help: "Count of JSON-RPC requests by method and outcome.",
			}, []string{"method", "outcome"}),
		}
		prometheus.MustRegister(
			lendingRegistry.loansCreated,
			lendingRegistry.loansRepaid,
			lendingRegistry.loansLiquidated,
			lendingRegistry.vaultDeposits,
			lendingRegistry.vaultWithdrawals,
			lendingRegistry.poolTotalAssets,
			lendingRegistry.poolLiquidity,
			lendingRegistry.protocolFees,
			lendingRegistry.rpcRequests,
		)
	})
	return lendingRegistry
}

func (m *LendingMetrics) ObserveLoanCreated() {
	if m == nil {
		return
	}
	m.loansCreated.Inc()
}

func (m *LendingMetrics) ObserveLoanRepaid() {
	if m == nil {
		return
	}
	m.loansRepaid.Inc()
}

func (m *LendingMetrics) ObserveLoanLiquidated() {
	if m == nil {
		return
	}
	m.loansLiquidated.Inc()
}

func (m *LendingMetrics) ObserveVaultDeposit() {
	if m == nil {
		return
	}
	m.vaultDeposits.Inc()
}

func (m *LendingMetrics) ObserveVaultWithdrawal() {
	if m == nil {
		return
	}
	m.vaultWithdrawals.Inc()
}

// SetPoolGauges reflects the latest pool snapshot. big.Int values outside
// float range saturate, which is acceptable for dashboards.
func (m *LendingMetrics) SetPoolGauges(totalAssets, liquidity, fees *big.Int) {
	if m == nil {
		return
	}
	m.poolTotalAssets.Set(bigFloat(totalAssets))
	m.poolLiquidity.Set(bigFloat(liquidity))
	m.protocolFees.Set(bigFloat(fees))
}

func (m *LendingMetrics) ObserveRPCRequest(method, outcome string) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	m.rpcRequests.WithLabelValues(method, outcome).Inc()
}

func bigFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
