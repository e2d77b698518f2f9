// Package cookie encodes and decodes cookie values for the request cookie jar.
//
// A Manager holds the cookie defaults (path, domain, flags) and an optional
// secret. When a secret is configured, values are sealed with AES-GCM before
// they leave the server, except for names listed with WithPlain. Without a
// secret every cookie travels as plain text.
//
//	m := cookie.New(
//	    cookie.WithSecret(os.Getenv("COOKIE_SECRET")),
//	    cookie.WithPlain("locale"),
//	)
//	c, err := m.Build("theme", "dark", cookie.MaxAge(3600))
package cookie
