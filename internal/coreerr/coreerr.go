// Package coreerr holds the stable error/event-kind identifiers emitted on
// the decision loop's log lines and audit counters. These are not Go
// errors propagated up a call stack — most of them describe informational
// or recoverable conditions that the controller logs and counts, per the
// propagation policy: recoverable errors are logged and counted, the main
// loop continues.
package coreerr

// Kind is a stable identifier safe to grep across log lines and dashboards.
type Kind string

const (
	// Startup
	WALInitFailed              Kind = "WAL_INIT_FAILED"
	WALLoadFailed              Kind = "WAL_LOAD_FAILED"
	ExchangeConnectFailed      Kind = "EXCHANGE_CONNECT_FAILED"
	AccountModeValidationFailed Kind = "ACCOUNT_MODE_VALIDATION_FAILED"
	EvolutionInitFailed        Kind = "EVOLUTION_INIT_FAILED"

	// Ingest
	IntentDuplicate        Kind = "INTENT_DUPLICATE"
	IntentWALAppendFailed  Kind = "INTENT_WAL_APPEND_FAILED"

	// Pipeline filters (informational)
	ExecFilterIgnoreMinNotional   Kind = "EXEC_FILTER_IGNORE"
	OrderThrottled                Kind = "ORDER_THROTTLED"
	OrderFilteredCost             Kind = "ORDER_FILTERED_COST"
	OrderCostFilterCooldownEnter  Kind = "ORDER_COST_FILTER_COOLDOWN_ENTER"
	OrderCostFilterCooldownExit   Kind = "ORDER_COST_FILTER_COOLDOWN_EXIT"
	OrderNearMissMakerAllowed     Kind = "ORDER_NEAR_MISS_MAKER_ALLOWED"

	// Execution
	AsyncSubmitFailed          Kind = "ASYNC_SUBMIT_FAILED"
	ExecProtectiveOrderMissing Kind = "EXEC_PROTECTIVE_ORDER_MISSING"
	ExecTPAttachFailed         Kind = "EXEC_TP_ATTACH_FAILED"

	// Reconcile
	OMSReconcileDeferred             Kind = "OMS_RECONCILE_DEFERRED"
	OMSReconcileGrace                Kind = "OMS_RECONCILE_GRACE"
	OMSReconcileDegraded             Kind = "OMS_RECONCILE_DEGRADED"
	OMSReconcileMismatch             Kind = "OMS_RECONCILE_MISMATCH"
	OMSReconcileAutoresync           Kind = "OMS_RECONCILE_AUTORESYNC"
	OMSReconcileAnomalyStreak        Kind = "OMS_RECONCILE_ANOMALY_STREAK"
	OMSReconcileAnomalyProtectionEnter Kind = "OMS_RECONCILE_ANOMALY_PROTECTION_ENTER"
	OMSReconcileAnomalyProtectionExit  Kind = "OMS_RECONCILE_ANOMALY_PROTECTION_EXIT"
	OMSReconcileAnomalyHaltEnter     Kind = "OMS_RECONCILE_ANOMALY_HALT_ENTER"
	OMSStalePendingClosed            Kind = "OMS_STALE_PENDING_CLOSED"
	ReconcileMismatchCritical        Kind = "CRITICAL_RECONCILE_MISMATCH_HALT"

	// Gate
	GateAlert                  Kind = "GATE_ALERT"
	GateCheckPassed            Kind = "GATE_CHECK_PASSED"
	GateCheckFailed            Kind = "GATE_CHECK_FAILED"
	GateRuntimeReduceOnlyEnter Kind = "GATE_RUNTIME_REDUCE_ONLY_ENTER"
	GateRuntimeReduceOnlyExit  Kind = "GATE_RUNTIME_REDUCE_ONLY_EXIT"
	GateRuntimeHaltEnter       Kind = "GATE_RUNTIME_HALT_ENTER"
	GateRuntimeHaltExit        Kind = "GATE_RUNTIME_HALT_EXIT"
	GateRuntimeAutoResume      Kind = "GATE_RUNTIME_AUTO_RESUME"

	// Evolution
	SelfEvolutionAction       Kind = "SELF_EVOLUTION_ACTION"
	PortWeightInvalidRejected Kind = "PORT_WEIGHT_INVALID_REJECTED"

	// Integrator
	IntegratorInit          Kind = "INTEGRATOR_INIT"
	IntegratorDegraded      Kind = "INTEGRATOR_DEGRADED"
	IntegratorFailsafe      Kind = "INTEGRATOR_FAILSAFE"
	IntegratorPolicyApplied Kind = "INTEGRATOR_POLICY_APPLIED"

	// Channel
	PublicDegraded        Kind = "PUBLIC_DEGRADED"
	PublicRecovered       Kind = "PUBLIC_RECOVERED"
	PublicReconnectFailed Kind = "PUBLIC_RECONNECT_FAILED"
	PrivateDegraded       Kind = "PRIVATE_DEGRADED"
	PrivateRecovered      Kind = "PRIVATE_RECOVERED"
	PrivateReconnectFailed Kind = "PRIVATE_RECONNECT_FAILED"
	ExecCursorPrimed      Kind = "EXEC_CURSOR_PRIMED"
	ExecCursorPrimeDegraded Kind = "EXEC_CURSOR_PRIME_DEGRADED"
	ExecCursorPrimeFailed Kind = "EXEC_CURSOR_PRIME_FAILED"
)
