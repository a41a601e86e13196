package gateway

// Schema definitions for the Harrier sales store.
// Compatible with both SQLite and PostgreSQL.

const schemaSales = `
CREATE TABLE IF NOT EXISTS sales_transactions (
    tenant_id TEXT NOT NULL,
    customer_code TEXT NOT NULL,
    customer_name TEXT NOT NULL,
    search_name TEXT,
    customer_type_code TEXT,
    salesperson_code TEXT,
    item_no TEXT,
    item_description TEXT,
    quantity REAL NOT NULL DEFAULT 0,
    amount REAL NOT NULL,
    posting_date TIMESTAMP NOT NULL,
    document_no TEXT,
    UNIQUE (tenant_id, document_no, item_no, posting_date)
);

CREATE INDEX IF NOT EXISTS idx_sales_tenant ON sales_transactions(tenant_id);
CREATE INDEX IF NOT EXISTS idx_sales_customer ON sales_transactions(tenant_id, customer_code);
CREATE INDEX IF NOT EXISTS idx_sales_salesperson ON sales_transactions(tenant_id, salesperson_code);
CREATE INDEX IF NOT EXISTS idx_sales_posting_date ON sales_transactions(tenant_id, posting_date);
`

const schemaChannels = `
CREATE TABLE IF NOT EXISTS customer_channels (
    tenant_id TEXT NOT NULL,
    customer_code TEXT NOT NULL,
    channel_name TEXT NOT NULL,
    PRIMARY KEY (tenant_id, customer_code)
);
`

const schemaSampleRequests = `
CREATE TABLE IF NOT EXISTS sample_requests (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_code TEXT NOT NULL,
    requested_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sample_requests_customer ON sample_requests(tenant_id, customer_code);
`

const schemaActivities = `
CREATE TABLE IF NOT EXISTS customer_activities (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    customer_code TEXT NOT NULL,
    activity_type TEXT NOT NULL,
    occurred_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_activities_customer ON customer_activities(tenant_id, customer_code);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSales,
		schemaChannels,
		schemaSampleRequests,
		schemaActivities,
	}
}
