package fetch

// Identity is one outbound client fingerprint. Rotating identities reduces
// correlated blocking across a batch.
type Identity struct {
	Name           string
	UserAgent      string
	AcceptLanguage string
}

// rotationPool is the default identity set. Operators can pin one entry by
// name via the fetcher config.
var rotationPool = []Identity{
	{
		Name:           "chrome-linux",
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		Name:           "chrome-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		Name:           "firefox-linux",
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		Name:           "firefox-windows",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:127.0) Gecko/20100101 Firefox/127.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
	{
		Name:           "safari-mac",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (Version/17.5 Safari/605.1.15)",
		AcceptLanguage: "en-US,en;q=0.9",
	},
}

// Identities returns a copy of the rotation pool.
func Identities() []Identity {
	return append([]Identity(nil), rotationPool...)
}

// identityByName returns the pinned identity, or false when the name is not
// in the pool.
func identityByName(name string) (Identity, bool) {
	for _, id := range rotationPool {
		if id.Name == name {
			return id, true
		}
	}
	return Identity{}, false
}
