// Package rbac implements role-based access control: the PostgreSQL
// store for users, roles and permissions, the Redis-backed role and
// permission cache, and password hashing.
package rbac
