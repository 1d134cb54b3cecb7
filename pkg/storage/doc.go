// Package storage provides PostgreSQL and Redis connectivity for the
// service. PostgreSQL is the system of record for users, roles and
// permissions; Redis holds sessions and the RBAC cache.
package storage
