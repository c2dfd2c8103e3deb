package elasticsearch

// indexMapping is the production mapping for physical catalog indices.
// Identifiers and filters are keywords; names and descriptions are analyzed
// text with a keyword sub-field for sorting.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "catalog_text": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["lowercase", "asciifolding"]
        }
      }
    }
  },
  "mappings": {
    "dynamic": "strict",
    "properties": {
      "product_variant_id":   { "type": "keyword" },
      "product_id":           { "type": "keyword" },
      "channel_id":           { "type": "keyword" },
      "language_code":        { "type": "keyword" },
      "sku":                  { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword" } } },
      "slug":                 { "type": "keyword" },
      "product_name":         { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "product_variant_name": { "type": "text", "analyzer": "catalog_text", "fields": { "keyword": { "type": "keyword", "ignore_above": 256 } } },
      "description":          { "type": "text", "analyzer": "catalog_text" },
      "currency_code":        { "type": "keyword" },
      "price":                { "type": "long" },
      "price_with_tax":       { "type": "long" },

      "facet_ids":                { "type": "keyword" },
      "facet_value_ids":          { "type": "keyword" },
      "collection_ids":           { "type": "keyword" },
      "collection_slugs":         { "type": "keyword" },
      "product_facet_ids":        { "type": "keyword" },
      "product_facet_value_ids":  { "type": "keyword" },
      "product_collection_ids":   { "type": "keyword" },
      "product_collection_slugs": { "type": "keyword" },

      "product_asset_id":                    { "type": "keyword" },
      "product_preview":                     { "type": "keyword", "index": false },
      "product_preview_focal_point":         { "type": "object", "enabled": false },
      "product_variant_asset_id":            { "type": "keyword" },
      "product_variant_preview":             { "type": "keyword", "index": false },
      "product_variant_preview_focal_point": { "type": "object", "enabled": false },

      "enabled":                    { "type": "boolean" },
      "in_stock":                   { "type": "boolean" },
      "product_enabled":            { "type": "boolean" },
      "product_in_stock":           { "type": "boolean" },
      "product_price_min":          { "type": "long" },
      "product_price_max":          { "type": "long" },
      "product_price_with_tax_min": { "type": "long" },
      "product_price_with_tax_max": { "type": "long" },

      "channel_ids":   { "type": "keyword" },
      "custom_fields": { "type": "object", "dynamic": true }
    }
  }
}`
