package db

// SchemaSQL contains the database schema initialization SQL.
const SchemaSQL = `
    -- ==========================================================================
    -- ENTITY TABLE (concept graph nodes)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS name ON entity TYPE string;
    DEFINE FIELD IF NOT EXISTS kind ON entity TYPE string DEFAULT "concept";
    -- TODO: Use set<string> when Go SDK supports CBOR tag 56 (v3.0 set type)
    DEFINE FIELD IF NOT EXISTS labels ON entity TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS embedding ON entity TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS decay_weight ON entity TYPE float DEFAULT 1.0;
    DEFINE FIELD IF NOT EXISTS last_active ON entity TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS created ON entity TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS entity_labels ON entity FIELDS labels;
    DEFINE INDEX IF NOT EXISTS entity_last_active ON entity FIELDS last_active;
    DEFINE INDEX IF NOT EXISTS entity_embedding ON entity FIELDS embedding HNSW DIMENSION 384 DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS entity_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS entity_name_ft ON entity FIELDS name FULLTEXT ANALYZER entity_analyzer BM25;

    -- ==========================================================================
    -- RELATES TABLE (explicit concept edges)
    -- ==========================================================================
    -- Single relation table with rel_type field instead of dynamic table names
    DEFINE TABLE IF NOT EXISTS relates TYPE RELATION IN entity OUT entity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS rel_type ON relates TYPE string;
    DEFINE FIELD IF NOT EXISTS weight ON relates TYPE float DEFAULT 1.0;
    DEFINE FIELD IF NOT EXISTS created ON relates TYPE datetime DEFAULT time::now();
    -- Unique constraint: sorted [in, out, rel_type] prevents duplicate edges
    DEFINE FIELD IF NOT EXISTS unique_key ON relates VALUE <string>string::concat(array::sort([<string>in, <string>out]), rel_type);
    DEFINE INDEX IF NOT EXISTS unique_relation ON relates FIELDS unique_key UNIQUE;

    -- ==========================================================================
    -- EPISODE TABLE (episodic memory)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS episode SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS content ON episode TYPE string;
    DEFINE FIELD IF NOT EXISTS summary ON episode TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS embedding ON episode TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS kind ON episode TYPE string DEFAULT "note";
    DEFINE FIELD IF NOT EXISTS closed ON episode TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS concepts_extracted ON episode TYPE bool DEFAULT false;
    DEFINE FIELD IF NOT EXISTS context ON episode TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS metadata ON episode TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS timestamp ON episode TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS created ON episode TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS episode_timestamp ON episode FIELDS timestamp;
    DEFINE INDEX IF NOT EXISTS episode_kind ON episode FIELDS kind;
    DEFINE INDEX IF NOT EXISTS episode_closed ON episode FIELDS closed;
    DEFINE INDEX IF NOT EXISTS episode_extracted ON episode FIELDS concepts_extracted;
    DEFINE INDEX IF NOT EXISTS episode_embedding ON episode FIELDS embedding HNSW DIMENSION 384 DIST COSINE TYPE F32;
    DEFINE ANALYZER IF NOT EXISTS episode_analyzer TOKENIZERS class FILTERS lowercase, ascii, snowball(english);
    DEFINE INDEX IF NOT EXISTS episode_content_ft ON episode FIELDS content FULLTEXT ANALYZER episode_analyzer BM25;

    -- ==========================================================================
    -- APPEARS_IN RELATION (entity occurrences inside episodes)
    -- ==========================================================================
    -- sequence orders occurrences within one episode; the temporal fusion
    -- signal reads sequence distances off this table
    DEFINE TABLE IF NOT EXISTS appears_in TYPE RELATION IN entity OUT episode SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS sequence ON appears_in TYPE int;
    DEFINE FIELD IF NOT EXISTS created ON appears_in TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS unique_key ON appears_in VALUE <string>string::concat(<string>in, <string>out, <string>sequence);
    DEFINE INDEX IF NOT EXISTS unique_occurrence ON appears_in FIELDS unique_key UNIQUE;

    -- ==========================================================================
    -- GOAL TABLE (backlog)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS goal SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS title ON goal TYPE string;
    DEFINE FIELD IF NOT EXISTS description ON goal TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS priority ON goal TYPE string;
    DEFINE FIELD IF NOT EXISTS source ON goal TYPE string;
    DEFINE FIELD IF NOT EXISTS parent_id ON goal TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS labels ON goal TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS progress ON goal TYPE array<object> FLEXIBLE DEFAULT [];
    REMOVE FIELD IF EXISTS progress.* ON goal;
    DEFINE FIELD progress.* ON goal TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS blocked_by ON goal TYPE option<string>;
    DEFINE FIELD IF NOT EXISTS emotional_valence ON goal TYPE float DEFAULT 0.0;
    DEFINE FIELD IF NOT EXISTS last_relevance ON goal TYPE option<float>;
    DEFINE FIELD IF NOT EXISTS created_at ON goal TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS last_touched ON goal TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS completed_at ON goal TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS abandoned_at ON goal TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS abandonment_reason ON goal TYPE option<string>;

    DEFINE INDEX IF NOT EXISTS goal_priority ON goal FIELDS priority;
    DEFINE INDEX IF NOT EXISTS goal_parent ON goal FIELDS parent_id;

    -- ==========================================================================
    -- HEARTBEAT TABLE (append-only cycle log, keyed by cycle number)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS heartbeat SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS number ON heartbeat TYPE int;
    DEFINE FIELD IF NOT EXISTS started_at ON heartbeat TYPE datetime;
    DEFINE FIELD IF NOT EXISTS ended_at ON heartbeat TYPE datetime;
    DEFINE FIELD IF NOT EXISTS energy_start ON heartbeat TYPE float;
    DEFINE FIELD IF NOT EXISTS energy_end ON heartbeat TYPE float;
    DEFINE FIELD IF NOT EXISTS environment ON heartbeat TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS decision_reasoning ON heartbeat TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS actions ON heartbeat TYPE array<object> FLEXIBLE DEFAULT [];
    REMOVE FIELD IF EXISTS actions.* ON heartbeat;
    DEFINE FIELD actions.* ON heartbeat TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS goals_modified ON heartbeat TYPE array<object> FLEXIBLE DEFAULT [];
    REMOVE FIELD IF EXISTS goals_modified.* ON heartbeat;
    DEFINE FIELD goals_modified.* ON heartbeat TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS narrative ON heartbeat TYPE string DEFAULT "";
    DEFINE FIELD IF NOT EXISTS narrative_memory ON heartbeat TYPE option<record<episode>>;
    DEFINE FIELD IF NOT EXISTS emotional_valence ON heartbeat TYPE float DEFAULT 0.0;

    DEFINE INDEX IF NOT EXISTS heartbeat_number ON heartbeat FIELDS number UNIQUE;

    -- ==========================================================================
    -- NEIGHBORHOOD TABLE (fused neighbor cache, keyed by subject entity id)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS neighborhood SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS subject ON neighborhood TYPE record<entity>;
    DEFINE FIELD IF NOT EXISTS neighbors ON neighborhood TYPE array<object> FLEXIBLE DEFAULT [];
    REMOVE FIELD IF EXISTS neighbors.* ON neighborhood;
    DEFINE FIELD neighbors.* ON neighborhood TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS computed_at ON neighborhood TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS stale ON neighborhood TYPE bool DEFAULT true;
    DEFINE FIELD IF NOT EXISTS created_at ON neighborhood TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS neighborhood_stale ON neighborhood FIELDS stale;

    -- ==========================================================================
    -- EVENT TABLE (external events awaiting a cycle)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS event SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS kind ON event TYPE string;
    DEFINE FIELD IF NOT EXISTS payload ON event TYPE option<object> FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS received_at ON event TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS processed ON event TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS event_processed ON event FIELDS processed;

    -- ==========================================================================
    -- OUTBOX TABLE (messages queued for the user)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS outbox SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS body ON outbox TYPE string;
    DEFINE FIELD IF NOT EXISTS channel ON outbox TYPE string DEFAULT "user";
    DEFINE FIELD IF NOT EXISTS created_at ON outbox TYPE datetime DEFAULT time::now();
    DEFINE FIELD IF NOT EXISTS delivered ON outbox TYPE bool DEFAULT false;

    DEFINE INDEX IF NOT EXISTS outbox_delivered ON outbox FIELDS delivered;

    -- ==========================================================================
    -- SINGLETON STATE TABLES
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS energy_state SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS current ON energy_state TYPE float;
    DEFINE FIELD IF NOT EXISTS max ON energy_state TYPE float;
    DEFINE FIELD IF NOT EXISTS base_regen ON energy_state TYPE float;
    DEFINE FIELD IF NOT EXISTS updated_at ON energy_state TYPE datetime DEFAULT time::now();

    DEFINE TABLE IF NOT EXISTS scheduler_state SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS cycle_number ON scheduler_state TYPE int DEFAULT 0;
    DEFINE FIELD IF NOT EXISTS last_cycle_at ON scheduler_state TYPE option<datetime>;
    DEFINE FIELD IF NOT EXISTS last_user_contact ON scheduler_state TYPE option<datetime>;

    DEFINE TABLE IF NOT EXISTS identity SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS summary ON identity TYPE string;
    DEFINE FIELD IF NOT EXISTS values ON identity TYPE array<string> DEFAULT [];
    DEFINE FIELD IF NOT EXISTS updated_at ON identity TYPE datetime DEFAULT time::now();
`
