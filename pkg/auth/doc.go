// Package auth resolves the user behind a request.
//
// A Provider inspects the request and returns an Authenticatable. JWT is the
// bundled provider: it verifies HS256 tokens signed with go-jose and loads the
// subject through a UserResolver. Tokens are looked up with an Extractor that
// tries the Authorization header, a cookie or a query parameter in order.
package auth
