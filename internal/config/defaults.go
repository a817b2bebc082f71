package config

const (
	chromeUA  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	iosUA     = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_2 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.2 Mobile/15E148 Safari/604.1"
	firefoxUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0"
	minimalUA = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36"
)

func DefaultSupportedHosts() []string {
	return []string{
		"amazon.in",
		"amazon.com",
		"amazon.co.uk",
		"amazon.de",
		"amazon.fr",
		"amazon.it",
		"amazon.es",
		"amazon.ca",
		"amazon.com.au",
		"amazon.co.jp",
		"amzn.in",
	}
}

// DefaultPrimaryProfile is the desktop Chrome identity used for the first fetch.
func DefaultPrimaryProfile() ProfileConfig {
	return ProfileConfig{
		ID:        "desktop-chrome",
		UserAgent: chromeUA,
		TLS:       "chrome",
		Headers: map[string]string{
			"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
			"Accept-Language":           "en-IN,en-US;q=0.9,en;q=0.8",
			"Accept-Encoding":           "gzip, deflate, br",
			"Upgrade-Insecure-Requests": "1",
			"Sec-Fetch-Dest":            "document",
			"Sec-Fetch-Mode":            "navigate",
			"Sec-Fetch-Site":            "none",
			"Sec-Fetch-User":            "?1",
		},
	}
}

// DefaultEvasionProfiles are tried in order once the primary fetch is blocked.
func DefaultEvasionProfiles() []ProfileConfig {
	return []ProfileConfig{
		{
			ID:        "mobile-safari",
			UserAgent: iosUA,
			TLS:       "ios",
			Headers: map[string]string{
				"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
				"Accept-Language": "en-IN,en;q=0.9",
				"Accept-Encoding": "gzip, deflate, br",
			},
		},
		{
			ID:        "desktop-firefox",
			UserAgent: firefoxUA,
			TLS:       "firefox",
			Headers: map[string]string{
				"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
				"Accept-Language":           "en-US,en;q=0.5",
				"Accept-Encoding":           "gzip, deflate, br",
				"DNT":                       "1",
				"Upgrade-Insecure-Requests": "1",
			},
		},
		{
			ID:        "minimal",
			UserAgent: minimalUA,
			TLS:       "go",
			Headers: map[string]string{
				"Accept-Language": "en-US,en;q=0.9",
			},
		},
	}
}

func DefaultIndicatorPhrases() []string {
	return []string{
		"robot-check",
		"robot check",
		"captchacharacters",
		"validatecaptcha",
		"opfcaptcha",
		"enter the characters you see below",
		"type the characters you see in this image",
		"sorry, we just need to make sure you're not a robot",
		"to discuss automated access to amazon data",
		"api-services-support@amazon.com",
		"automated access",
	}
}
