// Package cache keeps query results in Redis so repeated GET /rows requests
// with the same parameters skip reading and sorting the source.
//
//	client, err := cache.New(cfg.Cache, log)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	store := cache.NewStore[server.CachedRows](client, "rowquery:people.csv")
//
// Entries expire after Config.TTL seconds. Callers treat cache errors as
// misses.
package cache
