// Package auth provides authentication and authorization primitives for tools.
//
// It supports multiple authentication methods (JWT, API key, OAuth2 introspection)
// and role-based access control (RBAC). The package is protocol-agnostic and can
// be used with any transport layer.
package auth
