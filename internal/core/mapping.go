package core

// DefaultMapping pairs each local collection with the resource name the
// backend exposes for it. Collections without an entry are local-only and
// their queued operations are completed without a network call.
func DefaultMapping() map[string]string {
	return map[string]string{
		"invoices":          "invoices",
		"purchases":         "purchases",
		"parties":           "parties",
		"items":             "items",
		"payments":          "payments",
		"expenses":          "expenses",
		"quotations":        "quotations",
		"delivery_challans": "delivery-challans",
	}
}
