/*
Package storage provides BoltDB-backed persistence for the deployment
core's state: projects, environments, deployments and their jobs,
ACME certificates and accounts, CAPTCHA challenge sessions, status
monitors and checks, and IP access control rules.

BoltStore keeps one bucket per entity, keyed by ID, with values stored
as JSON. Lookups that aren't by primary key (by slug, by host, by CIDR)
scan the bucket with ForEach — acceptable at the scale this store is
built for; an index bucket can be added later if scans become a
bottleneck. Status checks are additionally keyed by
"<monitor_id>|<check_id>" so a monitor's history can be range-scanned
with a cursor Seek on its prefix instead of a full-bucket scan.

All transactions go through db.Update (write) or db.View (read); bbolt
serializes writers and allows concurrent readers, so callers never need
their own locking around a Store.
*/
package storage
