package handlers

// API bundles the per-domain handlers into the single handler set the router mounts.
type API struct {
	*PointsHandler
	*RewardHandler
	*WalletHandler
	*MerchantHandler
	*HealthHandler
	*SweepHandler
}
