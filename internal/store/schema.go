package store

// SchemaSQL initializes the knowledge-store tables.
const SchemaSQL = `
    -- ==========================================================================
    -- SOURCE TABLE: one row per learned URL
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS source SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS url ON source TYPE string;
    DEFINE FIELD IF NOT EXISTS title ON source TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS content_hash ON source TYPE string;
    DEFINE FIELD IF NOT EXISTS chunk_count ON source TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS learned_at ON source TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS source_url ON source FIELDS url UNIQUE;

    -- ==========================================================================
    -- CHUNK TABLE: retrieval pieces of a source
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS chunk SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS source ON chunk TYPE record<source>;
    DEFINE FIELD IF NOT EXISTS content ON chunk TYPE string;
    DEFINE FIELD IF NOT EXISTS position ON chunk TYPE int;
    DEFINE FIELD IF NOT EXISTS created_at ON chunk TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS chunk_source ON chunk FIELDS source;
    DEFINE ANALYZER IF NOT EXISTS chunk_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS chunk_content_ft ON chunk FIELDS content FULLTEXT ANALYZER chunk_analyzer BM25;
`
