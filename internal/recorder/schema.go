// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

package recorder

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id          VARCHAR NOT NULL,
	time        TIMESTAMP NOT NULL,
	ip          UINTEGER NOT NULL DEFAULT 0,
	dip         UINTEGER,
	source      VARCHAR NOT NULL,
	restriction VARCHAR NOT NULL,
	confidence  VARCHAR NOT NULL,
	category    VARCHAR NOT NULL,
	type        VARCHAR NOT NULL,
	name        VARCHAR,
	target      VARCHAR,
	status      VARCHAR,
	expires     TIMESTAMP,
	modified    TIMESTAMP NOT NULL,
	md5         BLOB,
	sha1        BLOB,
	sha256      BLOB,
	custom      JSON,
	PRIMARY KEY (id, time, ip)
);

CREATE TABLE IF NOT EXISTS client_to_event (
	id             VARCHAR NOT NULL,
	time           TIMESTAMP NOT NULL,
	client_org_id  VARCHAR NOT NULL,
	PRIMARY KEY (id, time, client_org_id)
);
`
