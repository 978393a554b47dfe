package parser

// lisbonListingHTML is a portal page with JSON-LD, og: tags and page chrome.
const lisbonListingHTML = `<!doctype html>
<html>
<head>
  <title>T2 Apartment in Alfama | Casas Portal</title>
  <meta property="og:title" content="T2 Apartment in Alfama">
  <meta property="og:price:amount" content="250000">
  <meta property="og:price:currency" content="EUR">
  <meta name="description" content="ignored">
  <script type="application/ld+json">
  {
    "@context": "https://schema.org",
    "@type": ["Product", "Apartment"],
    "name": "T2 Apartment in Alfama",
    "description": "Bright two-bedroom apartment with river view.",
    "sku": "CP-88123",
    "numberOfRooms": 2,
    "numberOfBathroomsTotal": 1,
    "floorSize": {"@type": "QuantitativeValue", "value": 85.5, "unitCode": "MTK"},
    "address": {"@type": "PostalAddress", "addressLocality": "Lisboa", "addressRegion": "Lisboa"},
    "offers": {"@type": "Offer", "price": "250000", "priceCurrency": "EUR",
      "seller": {"@type": "RealEstateAgent", "name": "Joana Silva", "telephone": "+351 912 345 678"}}
  }
  </script>
  <style>body { color: red }</style>
</head>
<body>
  <nav>Home | Buy | Rent</nav>
  <h1>T2 Apartment in Alfama</h1>
  <p>Price: 250 000 €</p>
  <p>Contact: joana@casas.example</p>
  <script>window.dataLayer = [];</script>
  <footer>© 2026 Casas Portal</footer>
</body>
</html>`
