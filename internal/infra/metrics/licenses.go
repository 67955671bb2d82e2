package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(licensesMintedTotal, licenseKeyCollisions, promoRedemptionsTotal)
}

var (
	licensesMintedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_licenses_minted_total",
			Help: "Licenses minted by source.",
		},
		[]string{"source"}, // subscription|credits|promo
	)

	licenseKeyCollisions = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "billing_license_key_collisions_total",
			Help: "Generated license keys rejected by the unique constraint.",
		},
	)

	promoRedemptionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_promo_redemptions_total",
			Help: "Promo redemption attempts by result.",
		},
		[]string{"result"}, // ok|invalid|already_redeemed|error
	)
)

func IncLicenseMinted(source string) {
	licensesMintedTotal.WithLabelValues(norm(source)).Inc()
}

func IncLicenseKeyCollision() { licenseKeyCollisions.Inc() }

func IncPromoRedemption(result string) {
	promoRedemptionsTotal.WithLabelValues(norm(result)).Inc()
}
