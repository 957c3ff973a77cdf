// Package accesscontrol implements IP-based allow/block rules for the
// reverse proxy: the deployment core's C6 component.
//
// Rules store a CIDR range (a bare address is treated as a /32) and an
// action, block or allow. IsBlocked answers whether a probe address falls
// inside any block rule's range.
package accesscontrol
