/*
Package s3 keeps a persistent tier image in a single Amazon S3 (or
S3-compatible) object.

A Store issues GetObject, PutObject and DeleteObject against one bucket and
key. Missing objects load as storage.ErrNotExist so that a fresh tier starts
empty. Transient failures (throttling, server faults, network errors) are
retried with exponential backoff; client faults and context errors are not.

# CargoShip Uploads

When EnableCargoShipOptimization is set the factory attaches a CargoShip
transporter and saves go through Transporter.Upload. A failed optimized
upload falls back to a plain PutObject:

	client, err := s3.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	store, err := s3.NewStore(client, cfg, s3.WithTransporter(s3.NewTransporter(client, cfg)))

# Storage Classes

Every saved image carries the configured storage class. Classes CargoShip
does not model map to the closest one it does (GLACIER_IR uploads as
GLACIER through CargoShip and as GLACIER_IR through PutObject). GLACIER and
DEEP_ARCHIVE fail validation because their objects are not readable until
restored.

# Configuration

	levels:
	  - kind: s3
	    capacity: 1000
	    s3:
	      bucket: my-cache
	      key: tiers/level2.img
	      region: us-west-2
	      endpoint: http://localhost:9000
	      force_path_style: true
	      storage_class: STANDARD_IA
*/
package s3
