package filter

// DefaultBlacklist holds generic promotional nouns, platform names, and common
// English words that the code patterns tend to capture by accident. Entries
// are compared case-insensitively.
var DefaultBlacklist = []string{
	// Promotional nouns and calls to action.
	"CODE", "CODES", "COUPON", "COUPONS", "PROMO", "PROMOCODE", "DISCOUNT",
	"DISCOUNTS", "VOUCHER", "OFFER", "OFFERS", "DEAL", "DEALS", "SALE",
	"SAVE", "SAVINGS", "FREE", "OFF", "REDEEM", "CLAIM", "CHECKOUT", "ORDER",
	"SHIPPING", "TRIAL", "BONUS", "REFERRAL", "AFFILIATE", "SPONSOR",
	"SPONSORED", "SPONSORSHIP", "SUBSCRIBE", "SUBSCRIPTION", "MEMBERSHIP",
	"LINK", "LINKS", "BELOW", "ABOVE", "DESCRIPTION", "CLICK", "SIGNUP",

	// Platforms.
	"YOUTUBE", "REDDIT", "INSTAGRAM", "TWITTER", "TIKTOK", "FACEBOOK",
	"PATREON", "DISCORD", "TWITCH", "SPOTIFY", "AMAZON", "LINKEDIN",
	"SNAPCHAT", "THREADS", "GITHUB", "HTTP", "HTTPS", "WWW",

	// Common English words long enough to survive the length rule.
	"THE", "THIS", "THAT", "THESE", "THOSE", "YOUR", "YOURS", "HERE",
	"THERE", "WHERE", "NOW", "TODAY", "TONIGHT", "WITH", "FROM", "ABOUT",
	"CHECK", "OUT", "AND", "FOR", "GET", "USE", "USING", "ENTER", "APPLY",
	"ONLY", "JUST", "ALSO", "SOME", "MORE", "MOST", "EVERY", "EVERYTHING",
	"SOMETHING", "ANYTHING", "NOTHING", "BECAUSE", "REALLY", "ACTUALLY",
	"PLEASE", "THANKS", "THANK", "VIDEO", "VIDEOS", "CHANNEL", "EPISODE",
	"WEBSITE", "DOWNLOAD", "PRODUCT", "PRODUCTS", "PURCHASE", "FIRST",
	"MONTH", "MONTHS", "YEAR", "YEARS", "WEEK", "ANNUAL", "MONTHLY",
	"ACCOUNT", "APP", "STORE", "SHOP", "SITE", "PAGE", "POST", "COMMENT",
	"COMMENTS", "NEW", "BEST", "GREAT", "AMAZING", "AWESOME", "EXCLUSIVE",
	"SPECIAL", "LIMITED", "TIME", "WHEN", "WHAT", "WHICH", "WILL", "WOULD",
	"SHOULD", "COULD", "HAVE", "BEEN", "THEIR", "THEM", "THEY", "YOU",
	"INFO", "DETAILS", "AVAILABLE", "AT", "CART", "OUR",
}
