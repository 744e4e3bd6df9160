/*
Package cardflow is the back end of a flashcard application.

Every domain (cards, dictionaries, settings, tts, translation) is served by a
processor: an immutable tree of guarded stages built once and shared by all
requests. A request is a context carrying the operation, a mode (prod, test
or stub) and the request data. The processor moves it from init to run and
then to ok or fail, collecting field-scoped errors on the way.

Packages:

  - pipeline: the stage engine, builder and phase helpers
  - cards, dictionaries, settings, tts, translation: the domain processors
  - repository: storage and provider interfaces, with memory and sqlite backends
  - transport: retrying request/reply client, Remote processors and the server
  - transport/redisbus: the Redis list bus
  - transport/dedup: the reply cache for retried requests
  - scheduling/workerpool: the pool requests run on
  - ratelimit/bucket: the token bucket pacing the server
  - config, logging, telemetry, metrics: the ambient stack

Example usage:

	proc, _ := cards.New(cards.Dependencies{Prod: db.Cards(), Test: memory.New().Cards()}, pipeline.Config{})

	c := cards.NewContext(cards.OpCreate, pipeline.ModeProd)
	c.CardRequest = model.Card{DictionaryID: dictID, Word: "rain", Translations: []string{"lluvia"}}
	_ = proc.Execute(ctx, c)

	if c.Status == pipeline.StatusFail {
		for _, e := range c.Errors {
			fmt.Println(e.Field, e.Message)
		}
	}

The cardflow command (cmd/cardflow) serves every processor over Redis.
*/
package cardflow
