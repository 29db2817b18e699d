package confidence

import (
	"net/url"
	"strings"
)

// LinkQuality grades a link by how strongly its shape suggests a promotion.
type LinkQuality int

const (
	LinkBare LinkQuality = iota
	LinkCommercial
	LinkPromotional
)

func (q LinkQuality) String() string {
	switch q {
	case LinkPromotional:
		return "promotional"
	case LinkCommercial:
		return "commercial"
	default:
		return "bare"
	}
}

// score is the quality's share of the link contribution.
func (q LinkQuality) score() float64 {
	switch q {
	case LinkPromotional:
		return 1.0
	case LinkCommercial:
		return 0.6
	default:
		return 0.3
	}
}

var promoMarkers = []string{
	"promo", "coupon", "discount", "deal", "offer", "voucher", "sale",
	"save", "sponsor", "partner", "affiliate", "referral", "ref=", "/ref/",
	"aff=", "aff_id", "affid", "utm_campaign", "code=", "/go/", "/r/",
}

var commercialHosts = []string{
	"amazon.", "amzn.to", "bit.ly", "geni.us", "tinyurl.com", "etsy.com",
	"ebay.", "shopify", "squarespace", "gumroad.com", "bestbuy.com",
	"walmart.com", "target.com", "aliexpress.", "kickstarter.com",
}

var commercialPaths = []string{
	"/shop", "/store", "/product", "/products/", "/buy", "/checkout",
	"/cart", "/pricing", "/plans", "/order", "/dp/",
}

// ClassifyLink grades a URL: promotional-keyword shape beats generic
// commercial, which beats a bare link.
func ClassifyLink(raw string) LinkQuality {
	lower := strings.ToLower(raw)
	u, err := url.Parse(lower)
	if err != nil {
		return LinkBare
	}
	tail := u.Host + u.EscapedPath() + "?" + u.RawQuery
	for _, m := range promoMarkers {
		if strings.Contains(tail, m) {
			return LinkPromotional
		}
	}
	for _, h := range commercialHosts {
		if strings.Contains(u.Host, h) {
			return LinkCommercial
		}
	}
	for _, p := range commercialPaths {
		if strings.Contains(u.EscapedPath(), p) {
			return LinkCommercial
		}
	}
	if strings.HasPrefix(u.Host, "shop.") || strings.HasPrefix(u.Host, "store.") {
		return LinkCommercial
	}
	return LinkBare
}
